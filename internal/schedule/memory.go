package schedule

import (
	"context"
	"sync"
)

// MemorySource is an in-memory Source used when no SOURCE_DATABASE_URL is
// set and in tests.
type MemorySource struct {
	mu       sync.Mutex
	byVendor map[string][]Assignment
	err      error
}

func NewMemorySource() *MemorySource {
	return &MemorySource{byVendor: map[string][]Assignment{}}
}

// Put replaces the assignments held for a vendor.
func (m *MemorySource) Put(vendor string, assignments ...Assignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byVendor[vendor] = assignments
}

// Fail makes subsequent Assignments calls return err (nil restores normal
// operation).
func (m *MemorySource) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemorySource) Assignments(ctx context.Context, vendor string) ([]Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]Assignment, len(m.byVendor[vendor]))
	copy(out, m.byVendor[vendor])
	return out, nil
}
