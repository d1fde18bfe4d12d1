package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"visitnav/internal/metrics"
	"visitnav/internal/model"
)

// VendorsHandler routes everything under /v1/vendors/{vendor}/...:
// day views, placement mutations, the move operation, the override dump,
// and the per-vendor SSE stream.
func (s *Server) VendorsHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rest := strings.TrimPrefix(path, "/v1/vendors/")
	if rest == path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing vendor", path)
		return
	}
	parts := strings.Split(rest, "/")
	vendor := parts[0]
	if vendor == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing vendor", path)
		return
	}
	switch {
	case len(parts) == 2 && parts[1] == "overrides":
		s.overridesForVendor(w, r, vendor)
	case len(parts) == 2 && parts[1] == "move":
		s.moveClient(w, r, vendor)
	case len(parts) == 3 && parts[1] == "events" && parts[2] == "stream":
		s.streamVendorEvents(w, r, vendor)
	case len(parts) == 4 && parts[1] == "days":
		day, err := model.ParseWeekday(parts[2])
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid day", err.Error(), path)
			return
		}
		switch parts[3] {
		case "natural":
			s.naturalView(w, r, vendor, day)
		case "custom":
			s.customView(w, r, vendor, day)
		case "place":
			s.placeClient(w, r, vendor, day)
		case "block":
			s.blockClient(w, r, vendor, day)
		case "unblock":
			s.unblockClient(w, r, vendor, day)
		default:
			writeProblem(w, http.StatusNotFound, "Not Found", "", path)
		}
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", path)
	}
}

func (s *Server) naturalView(w http.ResponseWriter, r *http.Request, vendor string, day model.Weekday) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	entries, err := s.Views.NaturalView(r.Context(), vendor, day)
	if err != nil {
		writeStoreProblem(w, err, "Natural view failed", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vendor": vendor, "day": day, "entries": entries})
}

func (s *Server) customView(w http.ResponseWriter, r *http.Request, vendor string, day model.Weekday) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	entries, err := s.Views.CustomView(r.Context(), vendor, day)
	if err != nil {
		writeStoreProblem(w, err, "Custom view failed", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vendor": vendor, "day": day, "entries": entries})
}

func (s *Server) overridesForVendor(w http.ResponseWriter, r *http.Request, vendor string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	byDay, err := s.Store.Overrides(r.Context(), vendor)
	if err != nil {
		writeStoreProblem(w, err, "List overrides failed", r.URL.Path)
		return
	}
	out := map[string][]model.OverrideEntry{}
	for day, entries := range byDay {
		out[day.Key()] = entries
	}
	writeJSON(w, http.StatusOK, map[string]any{"vendor": vendor, "days": out})
}

func (s *Server) placeClient(w http.ResponseWriter, r *http.Request, vendor string, day model.Weekday) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanMutate(vendor) {
		writeProblem(w, http.StatusForbidden, "Forbidden", "not authorized for this vendor", r.URL.Path)
		return
	}
	var req model.PlaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validatePlaceRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid place request", err.Error(), r.URL.Path)
		return
	}
	rec, err := s.Store.SetPosition(r.Context(), vendor, day, req.Client, req.Order)
	if err != nil {
		writeStoreProblem(w, err, "Place failed", r.URL.Path)
		return
	}
	s.finishMutation(r.Context(), w, rec, "override.placed")
}

func (s *Server) blockClient(w http.ResponseWriter, r *http.Request, vendor string, day model.Weekday) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanMutate(vendor) {
		writeProblem(w, http.StatusForbidden, "Forbidden", "not authorized for this vendor", r.URL.Path)
		return
	}
	var req model.BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateBlockRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid block request", err.Error(), r.URL.Path)
		return
	}
	rec, err := s.Store.SetPosition(r.Context(), vendor, day, req.Client, model.BlockOrder)
	if err != nil {
		writeStoreProblem(w, err, "Block failed", r.URL.Path)
		return
	}
	s.finishMutation(r.Context(), w, rec, "override.blocked")
}

func (s *Server) unblockClient(w http.ResponseWriter, r *http.Request, vendor string, day model.Weekday) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanMutate(vendor) {
		writeProblem(w, http.StatusForbidden, "Forbidden", "not authorized for this vendor", r.URL.Path)
		return
	}
	var req model.BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateBlockRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid unblock request", err.Error(), r.URL.Path)
		return
	}
	rec, removed, err := s.Store.RemoveOverride(r.Context(), vendor, day, req.Client)
	if err != nil {
		writeStoreProblem(w, err, "Unblock failed", r.URL.Path)
		return
	}
	if !removed {
		// nothing to undo; no audit row, no reload
		writeJSON(w, http.StatusOK, map[string]any{"removed": false})
		return
	}
	reloaded := s.reloadAfterMutation(r.Context())
	metrics.Mutations.WithLabelValues(string(rec.Change)).Inc()
	s.publishChange(rec)
	s.Pub.Emit(r.Context(), "override.unblocked", rec)
	writeJSON(w, http.StatusOK, map[string]any{"removed": true, "audit": rec, "reloaded": reloaded})
}

func (s *Server) moveClient(w http.ResponseWriter, r *http.Request, vendor string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanMutate(vendor) {
		writeProblem(w, http.StatusForbidden, "Forbidden", "not authorized for this vendor", r.URL.Path)
		return
	}
	var req model.MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	from, to, err := validateMoveRequest(&req)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid move request", err.Error(), r.URL.Path)
		return
	}
	rec, err := s.Store.MoveClient(r.Context(), vendor, req.Client, from, to, req.NewOrder)
	if err != nil {
		writeStoreProblem(w, err, "Move failed", r.URL.Path)
		return
	}
	s.finishMutation(r.Context(), w, rec, "override.moved")
}

// finishMutation runs the shared post-commit tail: snapshot reload, metrics,
// SSE fanout, webhook emission, response. The mutation itself is already
// durable; reload failure is reported, not rolled back.
func (s *Server) finishMutation(ctx context.Context, w http.ResponseWriter, rec model.AuditRecord, event string) {
	reloaded := s.reloadAfterMutation(ctx)
	metrics.Mutations.WithLabelValues(string(rec.Change)).Inc()
	s.publishChange(rec)
	s.Pub.Emit(ctx, event, rec)
	writeJSON(w, http.StatusOK, map[string]any{"audit": rec, "reloaded": reloaded})
}

func (s *Server) publishChange(rec model.AuditRecord) {
	data := map[string]any{
		"vendor":     rec.Vendor,
		"client":     rec.Client,
		"changeType": rec.Change,
	}
	if rec.OriginDay != nil {
		data["day"] = rec.OriginDay.Key()
	}
	if rec.DestinationDay != nil {
		data["destinationDay"] = rec.DestinationDay.Key()
	}
	s.Broker.Publish(rec.Vendor, SSEEvent{Type: "route.changed", Data: data})
}

func (s *Server) streamVendorEvents(w http.ResponseWriter, r *http.Request, vendor string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr := s.getPrincipal(r)
	if pr.Role == "vendor" && pr.VendorID != vendor {
		writeProblem(w, http.StatusForbidden, "Forbidden", "not authorized for this vendor's events", r.URL.Path)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(vendor)
	defer s.Broker.Unsubscribe(vendor, ch)
	// initial heartbeat
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"vendor\":\"%s\",\"ts\":\"%s\"}\n\n", vendor, time.Now().Format(time.RFC3339))
	flusher.Flush()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"vendor\":\"%s\",\"ts\":\"%s\"}\n\n", vendor, time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// AuditHandler handles GET /v1/audit?vendor=...|client=...&limit=n
func (s *Server) AuditHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	vendor := r.URL.Query().Get("vendor")
	client := r.URL.Query().Get("client")
	if (vendor == "") == (client == "") {
		writeProblem(w, http.StatusBadRequest, "Invalid audit query", "exactly one of vendor or client is required", r.URL.Path)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	var items []model.AuditRecord
	var err error
	if vendor != "" {
		items, err = s.Store.AuditRecent(r.Context(), vendor, limit)
	} else {
		items, err = s.Store.AuditForClient(r.Context(), client, limit)
	}
	if err != nil {
		writeStoreProblem(w, err, "Audit query failed", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// CacheReloadHandler handles POST /v1/admin/cache/reload (admin)
func (s *Server) CacheReloadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if err := s.Cache.Reload(r.Context()); err != nil {
		writeStoreProblem(w, err, "Cache reload failed", r.URL.Path)
		return
	}
	if s.Inval != nil {
		s.Inval.Publish(r.Context())
	}
	loadedAt := s.Cache.Snapshot().LoadedAt()
	s.Pub.Emit(r.Context(), "cache.reloaded", map[string]any{"loadedAt": loadedAt})
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "loadedAt": loadedAt})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions (admin)
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateSubscriptionRequest(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeStoreProblem(w, err, "Create subscription failed", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		items, err := s.Store.ListSubscriptions(r.Context())
		if err != nil {
			writeStoreProblem(w, err, "List subscriptions failed", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Subscription delete (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		writeStoreProblem(w, err, "Delete subscription failed", r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin: webhook deliveries list
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/webhook-deliveries" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, err := s.Store.ListWebhookDeliveries(r.Context(), limit)
	if err != nil {
		writeStoreProblem(w, err, "List deliveries failed", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using Postgres store
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
