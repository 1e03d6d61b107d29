package fedi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/yamori/fedi/internal"
)

// mock stores

type mockAccountStore struct {
	findFn           func(c context.Context, id string) (*Account, error)
	findByUsernameFn func(c context.Context, username string) (*Account, error)
}

func (m *mockAccountStore) Find(c context.Context, id string) (*Account, error) {
	if m.findFn != nil {
		return m.findFn(c, id)
	}
	return nil, ErrNotFound
}

func (m *mockAccountStore) FindByEmail(c context.Context, email string) (*Account, error) {
	return nil, ErrNotFound
}

func (m *mockAccountStore) FindByUsername(c context.Context, username string) (*Account, error) {
	if m.findByUsernameFn != nil {
		return m.findByUsernameFn(c, username)
	}
	return nil, ErrNotFound
}

func (m *mockAccountStore) Save(c context.Context, account *Account) error { return nil }

func (m *mockAccountStore) UpdateStatus(c context.Context, id string, status AccountStatus) error {
	return nil
}

func (m *mockAccountStore) UpdateHideCollections(c context.Context, id string, hide bool) error {
	return nil
}

type mockFollowStore struct {
	countFollowersFn    func(c context.Context, toID string) (int, error)
	listFollowersFn     func(c context.Context, toID string, page int, size int) ([]string, error)
	countFollowingFn    func(c context.Context, fromID string) (int, error)
	listFollowingFn     func(c context.Context, fromID string, page int, size int) ([]string, error)
	listFollowersCalled int
}

func (m *mockFollowStore) Follow(c context.Context, fromID string, toID string) error { return nil }

func (m *mockFollowStore) RequestFollow(c context.Context, fromID string, toID string) error {
	return nil
}

func (m *mockFollowStore) Unfollow(c context.Context, fromID string, toID string) error { return nil }

func (m *mockFollowStore) FindFollowStatus(c context.Context, fromID string, toID string) (FollowStatus, error) {
	return FollowStatusUnfollowing, nil
}

func (m *mockFollowStore) CountFollowers(c context.Context, toID string) (int, error) {
	if m.countFollowersFn != nil {
		return m.countFollowersFn(c, toID)
	}
	return 0, nil
}

func (m *mockFollowStore) ListFollowersPage(c context.Context, toID string, page int, size int) ([]string, error) {
	m.listFollowersCalled++
	if m.listFollowersFn != nil {
		return m.listFollowersFn(c, toID, page, size)
	}
	return []string{}, nil
}

func (m *mockFollowStore) CountFollowing(c context.Context, fromID string) (int, error) {
	if m.countFollowingFn != nil {
		return m.countFollowingFn(c, fromID)
	}
	return 0, nil
}

func (m *mockFollowStore) ListFollowingPage(c context.Context, fromID string, page int, size int) ([]string, error) {
	if m.listFollowingFn != nil {
		return m.listFollowingFn(c, fromID, page, size)
	}
	return []string{}, nil
}

// fake session

type fakeSession struct {
	values map[string]any
}

func (s *fakeSession) Close() error { return nil }

func (s *fakeSession) Set(c context.Context, key string, value any) { s.values[key] = value }

func (s *fakeSession) Get(c context.Context, key string) any { return s.values[key] }

func (s *fakeSession) Delete(c context.Context, key string) { delete(s.values, key) }

func (s *fakeSession) Clear(c context.Context) { s.values = map[string]any{} }

func (s *fakeSession) Middleware(next http.Handler) http.Handler { return next }

// helpers

func newTestHandler(accounts AccountStore, follows FollowStore) *Handler {
	log := zerolog.Nop()
	cfg := &Config{SoftwareName: "fedi", Host: "example.com", Https: true}
	resolver := NewURLResolver(cfg)
	remote := NewRemoteServer(cfg, resolver)
	processor := NewProcessor(cfg, &log, resolver, remote, accounts, follows)
	return NewHandler(&log, resolver, &fakeSession{values: map[string]any{}}, processor)
}

func aliceStore(account *Account) *mockAccountStore {
	return &mockAccountStore{
		findFn: func(c context.Context, id string) (*Account, error) {
			if id == account.ID {
				return account, nil
			}
			return nil, ErrNotFound
		},
	}
}

func aliceFollowers(followers []string) *mockFollowStore {
	return &mockFollowStore{
		countFollowersFn: func(c context.Context, toID string) (int, error) {
			return len(followers), nil
		},
		listFollowersFn: func(c context.Context, toID string, page int, size int) ([]string, error) {
			offset := (page - 1) * size
			if offset >= len(followers) {
				return []string{}, nil
			}
			end := offset + size
			if end > len(followers) {
				end = len(followers)
			}
			return followers[offset:end], nil
		},
	}
}

func doRequest(h *Handler, target string, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// followers collection

func TestFollowersPage_ReturnsFollowersInCreationOrder(t *testing.T) {
	alice := &Account{ID: "alice", Username: "alice"}
	followers := []string{
		"https://example.com/u/bob",
		"https://example.com/u/chris",
	}
	h := newTestHandler(aliceStore(alice), aliceFollowers(followers))

	rec := doRequest(h, "/u/alice/followers?page=1", "application/activity+json")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/activity+json" {
		t.Errorf("content type = %q", ct)
	}

	var doc internal.JSONOrderedCollectionPage
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}

	if doc.TotalItems != 2 {
		t.Errorf("totalItems = %d, want 2", doc.TotalItems)
	}
	if doc.PartOf == "" {
		t.Error("partOf must be present on a page response")
	}
	if len(doc.OrderedItems) != 2 {
		t.Fatalf("orderedItems = %v, want 2 entries", doc.OrderedItems)
	}
	if !strings.Contains(doc.OrderedItems[0], "bob") || !strings.Contains(doc.OrderedItems[1], "chris") {
		t.Errorf("orderedItems = %v, want bob then chris", doc.OrderedItems)
	}
}

func TestFollowersSummary_SmallCollection(t *testing.T) {
	alice := &Account{ID: "alice", Username: "alice"}
	h := newTestHandler(aliceStore(alice), aliceFollowers([]string{
		"https://example.com/u/bob",
		"https://example.com/u/chris",
	}))

	rec := doRequest(h, "/u/alice/followers", "application/activity+json")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}

	if body["totalItems"] != float64(2) {
		t.Errorf("totalItems = %v, want 2", body["totalItems"])
	}
	if _, ok := body["partOf"]; ok {
		t.Error("partOf must not appear on the summary response")
	}
	if _, ok := body["orderedItems"]; ok {
		t.Error("orderedItems must not appear on the summary response")
	}
	if body["first"] != "https://example.com/u/alice/followers?page=1" {
		t.Errorf("first = %v", body["first"])
	}
	if _, ok := body["last"]; ok {
		t.Error("last must not appear when everything fits on one page")
	}
}

func TestFollowersSummary_MultiPage(t *testing.T) {
	alice := &Account{ID: "alice", Username: "alice"}
	followers := make([]string, 30)
	for i := range followers {
		followers[i] = "https://example.com/u/fan"
	}
	h := newTestHandler(aliceStore(alice), aliceFollowers(followers))

	rec := doRequest(h, "/u/alice/followers", "application/activity+json")

	var doc internal.JSONOrderedCollection
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}

	if doc.TotalItems != 30 {
		t.Errorf("totalItems = %d, want 30", doc.TotalItems)
	}
	if doc.First != "https://example.com/u/alice/followers?page=1" {
		t.Errorf("first = %q", doc.First)
	}
	if doc.Last != "https://example.com/u/alice/followers?page=3" {
		t.Errorf("last = %q", doc.Last)
	}
}

func TestFollowersSummary_Empty(t *testing.T) {
	alice := &Account{ID: "alice", Username: "alice"}
	h := newTestHandler(aliceStore(alice), aliceFollowers(nil))

	rec := doRequest(h, "/u/alice/followers", "application/activity+json")

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}

	if body["totalItems"] != float64(0) {
		t.Errorf("totalItems = %v, want 0", body["totalItems"])
	}
	if _, ok := body["first"]; ok {
		t.Error("first must not appear on an empty collection")
	}
	if _, ok := body["last"]; ok {
		t.Error("last must not appear on an empty collection")
	}
}

func TestFollowers_HiddenCollections(t *testing.T) {
	alice := &Account{ID: "alice", Username: "alice", HideCollections: true}
	follows := aliceFollowers([]string{
		"https://example.com/u/bob",
		"https://example.com/u/chris",
	})
	h := newTestHandler(aliceStore(alice), follows)

	rec := doRequest(h, "/u/alice/followers", "application/activity+json")

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}

	if body["totalItems"] != float64(2) {
		t.Errorf("totalItems = %v, want 2 even when hidden", body["totalItems"])
	}
	for _, key := range []string{"items", "orderedItems", "first", "last"} {
		if _, ok := body[key]; ok {
			t.Errorf("%s must not appear when collections are hidden", key)
		}
	}

	rec = doRequest(h, "/u/alice/followers?page=1", "application/activity+json")

	var page internal.JSONOrderedCollectionPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(page.OrderedItems) != 0 {
		t.Errorf("orderedItems = %v, want empty when hidden", page.OrderedItems)
	}
	if page.TotalItems != 2 {
		t.Errorf("totalItems = %d, want 2", page.TotalItems)
	}
	if follows.listFollowersCalled != 0 {
		t.Error("follower listing must not be queried when collections are hidden")
	}
}

func TestFollowers_SuspendedPermanently(t *testing.T) {
	alice := &Account{ID: "alice", Username: "alice", Status: AccountStatusSuspendedPermanent}
	follows := aliceFollowers([]string{"https://example.com/u/bob"})
	h := newTestHandler(aliceStore(alice), follows)

	for _, target := range []string{
		"/u/alice/followers",
		"/u/alice/followers?page=1",
		"/u/alice/followers?format=html",
	} {
		for _, accept := range []string{"application/activity+json", "text/html"} {
			rec := doRequest(h, target, accept)
			if rec.Code != http.StatusGone {
				t.Errorf("GET %s (Accept %s) status = %d, want 410", target, accept, rec.Code)
			}
			if rec.Body.Len() != 0 {
				t.Errorf("GET %s body = %q, want empty", target, rec.Body.String())
			}
		}
	}
	if follows.listFollowersCalled != 0 {
		t.Error("no collection work may happen for a suspended account")
	}
}

func TestFollowers_SuspendedTemporarily(t *testing.T) {
	alice := &Account{ID: "alice", Username: "alice", Status: AccountStatusSuspendedTemporary}
	h := newTestHandler(aliceStore(alice), aliceFollowers([]string{"https://example.com/u/bob"}))

	for _, target := range []string{
		"/u/alice/followers",
		"/u/alice/followers?page=1",
	} {
		rec := doRequest(h, target, "application/activity+json")
		if rec.Code != http.StatusForbidden {
			t.Errorf("GET %s status = %d, want 403", target, rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("GET %s body = %q, want empty", target, rec.Body.String())
		}
	}
}

func TestFollowers_UnknownAccount(t *testing.T) {
	h := newTestHandler(&mockAccountStore{}, &mockFollowStore{})

	rec := doRequest(h, "/u/nobody/followers", "application/activity+json")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestFollowers_LenientPageParameter(t *testing.T) {
	alice := &Account{ID: "alice", Username: "alice"}
	h := newTestHandler(aliceStore(alice), aliceFollowers([]string{"https://example.com/u/bob"}))

	for _, target := range []string{
		"/u/alice/followers?page=abc",
		"/u/alice/followers?page=0",
		"/u/alice/followers?page=-3",
	} {
		rec := doRequest(h, target, "application/activity+json")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", target, rec.Code)
		}

		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body["type"] != "OrderedCollection" {
			t.Errorf("GET %s returned %v, want a summary document", target, body["type"])
		}
	}
}

func TestFollowers_PageBeyondRange(t *testing.T) {
	alice := &Account{ID: "alice", Username: "alice"}
	h := newTestHandler(aliceStore(alice), aliceFollowers([]string{"https://example.com/u/bob"}))

	rec := doRequest(h, "/u/alice/followers?page=9", "application/activity+json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var doc internal.JSONOrderedCollectionPage
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(doc.OrderedItems) != 0 {
		t.Errorf("orderedItems = %v, want empty beyond the last page", doc.OrderedItems)
	}
	if doc.TotalItems != 1 {
		t.Errorf("totalItems = %d, want 1", doc.TotalItems)
	}
}

func TestFollowers_HTMLFormat(t *testing.T) {
	alice := &Account{ID: "alice", Username: "alice"}
	h := newTestHandler(aliceStore(alice), aliceFollowers(nil))

	rec := doRequest(h, "/u/alice/followers", "text/html")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html" {
		t.Errorf("content type = %q, want text/html", ct)
	}
	if strings.Contains(rec.Body.String(), "totalItems") {
		t.Error("html response must not carry the collection payload")
	}
}

func TestFollowers_RepeatedRequestsAreIdentical(t *testing.T) {
	alice := &Account{ID: "alice", Username: "alice"}
	h := newTestHandler(aliceStore(alice), aliceFollowers([]string{
		"https://example.com/u/bob",
		"https://example.com/u/chris",
	}))

	first := doRequest(h, "/u/alice/followers?page=1", "application/activity+json")
	second := doRequest(h, "/u/alice/followers?page=1", "application/activity+json")

	if first.Body.String() != second.Body.String() {
		t.Errorf("repeated requests differ:\n%s\n%s", first.Body.String(), second.Body.String())
	}
}

// following collection

func TestFollowing_SummaryAndPage(t *testing.T) {
	alice := &Account{ID: "alice", Username: "alice"}
	follows := &mockFollowStore{
		countFollowingFn: func(c context.Context, fromID string) (int, error) {
			return 1, nil
		},
		listFollowingFn: func(c context.Context, fromID string, page int, size int) ([]string, error) {
			if page == 1 {
				return []string{"https://example.com/u/bob"}, nil
			}
			return []string{}, nil
		},
	}
	h := newTestHandler(aliceStore(alice), follows)

	rec := doRequest(h, "/u/alice/following", "application/activity+json")
	var summary internal.JSONOrderedCollection
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if summary.TotalItems != 1 {
		t.Errorf("totalItems = %d, want 1", summary.TotalItems)
	}
	if summary.First != "https://example.com/u/alice/following?page=1" {
		t.Errorf("first = %q", summary.First)
	}

	rec = doRequest(h, "/u/alice/following?page=1", "application/activity+json")
	var page internal.JSONOrderedCollectionPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(page.OrderedItems) != 1 || page.OrderedItems[0] != "https://example.com/u/bob" {
		t.Errorf("orderedItems = %v", page.OrderedItems)
	}
}

// actor documents share the same gate

func TestActorDocument_GatedBySuspension(t *testing.T) {
	alice := &Account{ID: "alice", Username: "alice", Status: AccountStatusSuspendedPermanent}
	h := newTestHandler(aliceStore(alice), &mockFollowStore{})

	rec := doRequest(h, "/u/alice", "application/activity+json")
	if rec.Code != http.StatusGone {
		t.Errorf("status = %d, want 410", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}

func TestParseUserAddr(t *testing.T) {
	local, err := parseUserAddr("alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if local.preferredUsername != "alice" || local.host != "" {
		t.Errorf("parseUserAddr(alice) = %+v", local)
	}

	remote, err := parseUserAddr("alice@social.example")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remote.preferredUsername != "alice" || remote.host != "social.example" {
		t.Errorf("parseUserAddr(alice@social.example) = %+v", remote)
	}
}
