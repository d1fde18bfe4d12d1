package api

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"visitnav/internal/auth"
	"visitnav/internal/cache"
	"visitnav/internal/schedule"
	"visitnav/internal/store"
	"visitnav/internal/view"
	"visitnav/internal/webhooks"
)

type Server struct {
	Store    store.Store
	Cache    *cache.Cache
	Resolver *schedule.Resolver
	Views    *view.Builder
	Pub      *webhooks.Publisher
	Auth     *auth.Verifier
	Broker   EventBroker
	Inval    *RedisInvalidator // nil without REDIS_URL
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store
// and in-memory schedule sources.
func NewServer() (*Server, error) {
	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	var master, history schedule.Source
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
		master = schedule.NewMemorySource()
		history = schedule.NewMemorySource()
	} else {
		sp, err := store.NewPostgres(dsn, storeTimeout())
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			_ = sp.MigrateDir("db/migrations")
		}
		s = sp
		// Schedule sources share the override pool unless pointed elsewhere.
		db := sp.DB()
		if srcDSN := os.Getenv("SOURCE_DATABASE_URL"); srcDSN != "" && srcDSN != dsn {
			src, err := store.NewPostgres(srcDSN, storeTimeout())
			if err != nil {
				return nil, err
			}
			db = src.DB()
		}
		master = schedule.NewMasterSource(db)
		history = schedule.NewHistorySource(db)
	}

	c := cache.New(s)
	resolver := schedule.NewResolver(master, history)

	// Broker selection
	var broker EventBroker
	var inval *RedisInvalidator
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
		if iv, err := NewRedisInvalidator(); err == nil {
			inval = iv
		}
	} else {
		broker = NewBroker()
	}

	srv := &Server{
		Store:    s,
		Cache:    c,
		Resolver: resolver,
		Views:    view.NewBuilder(resolver, c),
		Pub:      webhooks.NewPublisher(s),
		Auth:     auth.NewVerifierFromEnv(),
		Broker:   broker,
		Inval:    inval,
	}
	if inval != nil {
		inval.Run(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.Reload(ctx); err != nil {
				log.Printf("cache reload on invalidation failed: %v", err)
			}
		})
	}
	return srv, nil
}

func storeTimeout() time.Duration {
	if v := os.Getenv("STORE_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return 5 * time.Second
}

// WarmCache loads the initial override snapshot. Startup proceeds on failure;
// the first successful reload fills the cache.
func (s *Server) WarmCache(ctx context.Context) {
	if err := s.Cache.Reload(ctx); err != nil {
		log.Printf("initial cache load failed: %v", err)
	}
}

// reloadAfterMutation refreshes the local snapshot and tells other instances
// to do the same. The mutation is already committed; a failed reload leaves a
// stale cache, which the caller reports to the client. The reload runs on a
// detached context so an editor disconnecting right after commit cannot skip
// it — only store health can.
func (s *Server) reloadAfterMutation(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if s.Inval != nil {
		s.Inval.Publish(ctx)
	}
	if err := s.Cache.Reload(ctx); err != nil {
		log.Printf("cache reload after mutation failed: %v", err)
		return false
	}
	return true
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
