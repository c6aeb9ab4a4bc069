package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestMemoryStore_VersionedUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	d := &Data{ID: "s1"}
	if err := s.Create(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.Version != 1 {
		t.Fatalf("version=%d want=1", d.Version)
	}

	a, _ := s.Get(ctx, "s1")
	b, _ := s.Get(ctx, "s1")

	a.Cart = append(a.Cart, "p1")
	if err := s.Update(ctx, a); err != nil {
		t.Fatalf("update a: %v", err)
	}
	if a.Version != 2 {
		t.Fatalf("version=%d want=2", a.Version)
	}

	b.Cart = append(b.Cart, "p2")
	if err := s.Update(ctx, b); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale update err=%v want ErrVersionConflict", err)
	}

	got, _ := s.Get(ctx, "s1")
	if len(got.Cart) != 1 || got.Cart[0] != "p1" {
		t.Fatalf("cart=%v", got.Cart)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)
	_ = s.Create(ctx, &Data{ID: "s1", Cart: []string{"a"}})

	got, _ := s.Get(ctx, "s1")
	got.Cart[0] = "mutated"

	again, _ := s.Get(ctx, "s1")
	if again.Cart[0] != "a" {
		t.Fatalf("store aliased caller slice: %v", again.Cart)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }

	_ = s.Create(ctx, &Data{ID: "s1"})

	now = now.Add(50 * time.Second)
	if d, _ := s.Get(ctx, "s1"); d == nil {
		t.Fatalf("session expired early")
	}

	// the read above slid the deadline forward
	now = now.Add(50 * time.Second)
	d, _ := s.Get(ctx, "s1")
	if d == nil {
		t.Fatalf("sliding expiry not applied")
	}

	now = now.Add(2 * time.Minute)
	if d, _ := s.Get(ctx, "s1"); d != nil {
		t.Fatalf("expected expired session")
	}
	if err := s.Update(ctx, d); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update expired err=%v want ErrNotFound", err)
	}
}

func TestTokenMaker_RoundTrip(t *testing.T) {
	tm, err := NewTokenMaker([]byte(strings.Repeat("s", 32)))
	if err != nil {
		t.Fatalf("NewTokenMaker: %v", err)
	}

	tok, err := tm.New("abc", time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	id, exp, err := tm.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id != "abc" {
		t.Fatalf("id=%q", id)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Fatalf("expiry=%v", exp)
	}
}

func TestTokenMaker_Rejects(t *testing.T) {
	tm, _ := NewTokenMaker([]byte(strings.Repeat("s", 32)))
	other, _ := NewTokenMaker([]byte(strings.Repeat("o", 32)))

	expired, _ := tm.New("abc", -time.Minute)
	foreign, _ := other.New("abc", time.Hour)
	valid, _ := tm.New("abc", time.Hour)

	parts := strings.Split(valid, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	cases := map[string]string{
		"garbage":     "not-a-token",
		"expired":     expired,
		"other key":   foreign,
		"tampered":    tampered,
		"empty value": "",
	}

	for name, tok := range cases {
		if _, _, err := tm.Parse(tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: err=%v want ErrInvalidToken", name, err)
		}
	}
}

func newManager(t *testing.T) *Manager {
	t.Helper()

	tm, err := NewTokenMaker([]byte(strings.Repeat("k", 32)))
	if err != nil {
		t.Fatalf("NewTokenMaker: %v", err)
	}
	return &Manager{
		Store:  NewMemoryStore(time.Hour),
		Tokens: tm,
		TTL:    time.Hour,
		Log:    zap.NewNop(),
	}
}

func TestMiddleware_IssuesAndReusesSession(t *testing.T) {
	m := newManager(t)

	var seen []string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, ok := FromContext(r.Context())
		if !ok {
			t.Fatalf("no session in context")
		}
		seen = append(seen, d.ID)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cart", nil))

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName {
		t.Fatalf("cookies=%v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Fatalf("session cookie must be HttpOnly")
	}

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if len(seen) != 2 || seen[0] != seen[1] {
		t.Fatalf("session ids=%v want same id twice", seen)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("fresh cookie should not be re-issued")
	}
}

func TestMiddleware_InvalidCookieStartsNewSession(t *testing.T) {
	m := newManager(t)

	var id string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, _ := FromContext(r.Context())
		id = d.ID
	}))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "forged"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if id == "" {
		t.Fatalf("no session created")
	}
	if len(rec.Result().Cookies()) != 1 {
		t.Fatalf("expected a replacement cookie")
	}
}
