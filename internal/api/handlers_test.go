package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"visitnav/internal/auth"
	"visitnav/internal/cache"
	"visitnav/internal/model"
	"visitnav/internal/schedule"
	"visitnav/internal/store"
	"visitnav/internal/view"
	"visitnav/internal/webhooks"
)

func newTestServer(t *testing.T) (*Server, *schedule.MemorySource) {
	t.Helper()
	mem := store.NewMemory()
	master := schedule.NewMemorySource()
	history := schedule.NewMemorySource()
	resolver := schedule.NewResolver(master, history)
	c := cache.New(mem)
	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	s := &Server{
		Store:    mem,
		Cache:    c,
		Resolver: resolver,
		Views:    view.NewBuilder(resolver, c),
		Pub:      webhooks.NewPublisher(mem),
		Auth:     auth.NewVerifierFromEnv(),
		Broker:   NewBroker(),
	}
	return s, master
}

func seedMondays(master *schedule.MemorySource, vendor string, clients ...string) {
	out := make([]schedule.Assignment, len(clients))
	for i, c := range clients {
		a := schedule.Assignment{Client: c}
		a.Days[model.Monday] = true
		out[i] = a
	}
	master.Put(vendor, out...)
}

func doJSON(t *testing.T, s *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.VendorsHandler(w, req)
	return w
}

func TestPlaceThenCustomView(t *testing.T) {
	s, master := newTestServer(t)
	seedMondays(master, "V1", "A001", "A002", "A003")

	w := doJSON(t, s, http.MethodPost, "/v1/vendors/V1/days/monday/place",
		model.PlaceRequest{Client: "A002", Order: 0}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("place status = %d, body %s", w.Code, w.Body.String())
	}
	var placeResp struct {
		Audit    model.AuditRecord `json:"audit"`
		Reloaded bool              `json:"reloaded"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &placeResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if placeResp.Audit.Change != model.ChangePlace || !placeResp.Reloaded {
		t.Fatalf("place response = %+v", placeResp)
	}

	w = doJSON(t, s, http.MethodGet, "/v1/vendors/V1/days/monday/custom", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("custom status = %d", w.Code)
	}
	var viewResp struct {
		Entries []model.ViewEntry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &viewResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(viewResp.Entries) != 3 || viewResp.Entries[0].Client != "A002" {
		t.Fatalf("custom view = %+v, want A002 first of 3", viewResp.Entries)
	}
	if viewResp.Entries[0].Source != model.SourceOverride {
		t.Fatalf("placed entry source = %s", viewResp.Entries[0].Source)
	}
}

func TestBlockExcludesFromCustomAndAnnotatesNatural(t *testing.T) {
	s, master := newTestServer(t)
	seedMondays(master, "V1", "A001", "A002")

	w := doJSON(t, s, http.MethodPost, "/v1/vendors/V1/days/monday/block",
		model.BlockRequest{Client: "A001"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("block status = %d, body %s", w.Code, w.Body.String())
	}

	var viewResp struct {
		Entries []model.ViewEntry `json:"entries"`
	}
	w = doJSON(t, s, http.MethodGet, "/v1/vendors/V1/days/monday/custom", nil, nil)
	_ = json.Unmarshal(w.Body.Bytes(), &viewResp)
	if len(viewResp.Entries) != 1 || viewResp.Entries[0].Client != "A002" {
		t.Fatalf("custom view = %+v, want only A002", viewResp.Entries)
	}

	w = doJSON(t, s, http.MethodGet, "/v1/vendors/V1/days/monday/natural", nil, nil)
	_ = json.Unmarshal(w.Body.Bytes(), &viewResp)
	if len(viewResp.Entries) != 2 {
		t.Fatalf("natural view = %+v, want both clients", viewResp.Entries)
	}
	if !viewResp.Entries[0].Blocked || viewResp.Entries[1].Blocked {
		t.Fatalf("natural blocked flags = %+v", viewResp.Entries)
	}
}

func TestUnblockNoOpReportsNotRemoved(t *testing.T) {
	s, master := newTestServer(t)
	seedMondays(master, "V1", "A001")

	w := doJSON(t, s, http.MethodPost, "/v1/vendors/V1/days/monday/unblock",
		model.BlockRequest{Client: "A001"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unblock status = %d", w.Code)
	}
	var resp struct {
		Removed bool `json:"removed"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Removed {
		t.Fatalf("no-op unblock reported removed")
	}
	items, _ := s.Store.AuditRecent(context.Background(), "V1", 10)
	if len(items) != 0 {
		t.Fatalf("no-op unblock wrote audit: %+v", items)
	}
}

func TestMoveEndState(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/v1/vendors/V1/move",
		model.MoveRequest{Client: "A001", FromDay: "monday", ToDay: "thursday", NewOrder: 2}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("move status = %d, body %s", w.Code, w.Body.String())
	}

	byDay, _ := s.Store.Overrides(context.Background(), "V1")
	if mon := byDay[model.Monday]; len(mon) != 1 || !mon[0].Blocked() {
		t.Fatalf("monday rows = %+v, want single block", mon)
	}
	if thu := byDay[model.Thursday]; len(thu) != 1 || thu[0].Order != 2 {
		t.Fatalf("thursday rows = %+v, want single placement at 2", thu)
	}
}

func TestVendorRoleRestrictedToOwnRoute(t *testing.T) {
	s, _ := newTestServer(t)

	hdr := map[string]string{"X-Role": "vendor", "X-Vendor-Id": "V2"}
	w := doJSON(t, s, http.MethodPost, "/v1/vendors/V1/days/monday/place",
		model.PlaceRequest{Client: "A001", Order: 0}, hdr)
	if w.Code != http.StatusForbidden {
		t.Fatalf("cross-vendor mutation status = %d, want 403", w.Code)
	}

	hdr["X-Vendor-Id"] = "V1"
	w = doJSON(t, s, http.MethodPost, "/v1/vendors/V1/days/monday/place",
		model.PlaceRequest{Client: "A001", Order: 0}, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("own-vendor mutation status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestPlaceValidation(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/v1/vendors/V1/days/monday/place",
		model.PlaceRequest{Client: "A001", Order: -1}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative order status = %d, want 400", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, "/v1/vendors/V1/days/monday/place",
		model.PlaceRequest{Order: 1}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing client status = %d, want 400", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, "/v1/vendors/V1/days/funday/place",
		model.PlaceRequest{Client: "A001", Order: 1}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad day status = %d, want 400", w.Code)
	}
}

func TestAuditHandlerQueries(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	_, _ = s.Store.SetPosition(ctx, "V1", model.Monday, "A001", 1)
	_, _ = s.Store.SetPosition(ctx, "V2", model.Monday, "A001", 2)

	req := httptest.NewRequest(http.MethodGet, "/v1/audit?vendor=V1", nil)
	w := httptest.NewRecorder()
	s.AuditHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("vendor audit status = %d", w.Code)
	}
	var resp struct {
		Items []model.AuditRecord `json:"items"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Items) != 1 || resp.Items[0].Vendor != "V1" {
		t.Fatalf("vendor audit = %+v", resp.Items)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/audit?client=A001", nil)
	w = httptest.NewRecorder()
	s.AuditHandler(w, req)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Items) != 2 {
		t.Fatalf("client audit = %+v, want 2 rows", resp.Items)
	}

	// exactly one of vendor/client
	for _, q := range []string{"/v1/audit", "/v1/audit?vendor=V1&client=A001"} {
		req = httptest.NewRequest(http.MethodGet, q, nil)
		w = httptest.NewRecorder()
		s.AuditHandler(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s status = %d, want 400", q, w.Code)
		}
	}
}

func TestCacheReloadRequiresAdmin(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/cache/reload", nil)
	w := httptest.NewRecorder()
	s.CacheReloadHandler(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("office reload status = %d, want 403", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/admin/cache/reload", nil)
	req.Header.Set("X-Role", "admin")
	w = httptest.NewRecorder()
	s.CacheReloadHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("admin reload status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	s, _ := newTestServer(t)
	hdr := map[string]string{"X-Role": "admin", "Content-Type": "application/json"}

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(model.SubscriptionRequest{URL: "https://example.com/hook", Events: []string{"override.placed"}})
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", &buf)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.SubscriptionsHandler(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	var sub model.Subscription
	_ = json.Unmarshal(w.Body.Bytes(), &sub)

	req = httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil)
	req.Header.Set("X-Role", "admin")
	w = httptest.NewRecorder()
	s.SubscriptionByIDHandler(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	subs, _ := s.Store.ListSubscriptions(context.Background())
	if len(subs) != 0 {
		t.Fatalf("subscription survived delete: %+v", subs)
	}
}

func TestMutationEmitsWebhookDelivery(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	_, err := s.Store.CreateSubscription(ctx, model.SubscriptionRequest{URL: "https://example.com/hook", Events: []string{"override.placed"}})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	w := doJSON(t, s, http.MethodPost, "/v1/vendors/V1/days/monday/place",
		model.PlaceRequest{Client: "A001", Order: 3}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("place status = %d", w.Code)
	}
	items, _ := s.Store.ListWebhookDeliveries(ctx, 10)
	if len(items) != 1 || items[0].EventType != "override.placed" {
		t.Fatalf("deliveries = %+v, want one override.placed", items)
	}
}
