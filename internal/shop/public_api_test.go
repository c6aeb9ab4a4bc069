package shop_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"MiniShop/internal/catalog"
	"MiniShop/internal/session"
	"MiniShop/internal/shop"
)

const metricsToken = "scrape-me"

type options struct {
	sessions  session.Store
	staticDir string
}

func newShopTS(t *testing.T, opts options) *httptest.Server {
	t.Helper()

	tokens, err := session.NewTokenMaker([]byte(strings.Repeat("t", 32)))
	if err != nil {
		t.Fatalf("NewTokenMaker: %v", err)
	}
	if opts.sessions == nil {
		opts.sessions = session.NewMemoryStore(time.Hour)
	}

	h, err := shop.NewHandler(
		shop.Deps{
			Products:   catalog.NewMemStore(),
			Sessions:   opts.sessions,
			Tokens:     tokens,
			SessionTTL: time.Hour,
			StaticDir:  opts.staticDir,
		},
		shop.HTTPDeps{
			Log:            zap.NewNop(),
			Service:        "shop",
			Registry:       prometheus.NewRegistry(),
			MetricsEnabled: true,
			MetricsToken:   metricsToken,
		},
	)
	if err != nil {
		t.Fatalf("shop.NewHandler: %v", err)
	}

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func newClient(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func do(t *testing.T, c *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func TestShop_ProductLifecycle(t *testing.T) {
	ts := newShopTS(t, options{})
	c := newClient(t)

	var created catalog.Product
	{
		resp, raw := do(t, c, http.MethodPost, ts.URL+"/api/products", map[string]any{
			"name":  "Widget",
			"price": 9.99,
		}, nil)

		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create status=%d body=%s", resp.StatusCode, raw)
		}
		if err := json.Unmarshal(raw, &created); err != nil {
			t.Fatalf("decode: %v body=%s", err, raw)
		}
		if created.ID == "" {
			t.Fatalf("empty id")
		}
	}

	{
		resp, raw := do(t, c, http.MethodGet, ts.URL+"/api/products", nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("list status=%d", resp.StatusCode)
		}

		var list []catalog.Product
		if err := json.Unmarshal(raw, &list); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		if len(list) != 1 || list[0].ID != created.ID {
			t.Fatalf("list=%s", raw)
		}
	}

	{
		resp, raw := do(t, c, http.MethodDelete, ts.URL+"/api/products/"+created.ID, nil, nil)
		if resp.StatusCode != http.StatusNoContent || len(raw) != 0 {
			t.Fatalf("delete status=%d body=%s", resp.StatusCode, raw)
		}
	}

	{
		resp, raw := do(t, c, http.MethodGet, ts.URL+"/products/"+created.ID, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("detail status=%d", resp.StatusCode)
		}
		if !strings.Contains(string(raw), "Product not found") {
			t.Fatalf("detail body=%s", raw)
		}
	}
}

func TestShop_CartWithUnknownProductIsEmpty(t *testing.T) {
	ts := newShopTS(t, options{})
	c := newClient(t)

	resp, _ := do(t, c, http.MethodPost, ts.URL+"/cart", map[string]any{"productId": "ghost"}, nil)
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("add status=%d", resp.StatusCode)
	}

	resp, raw := do(t, c, http.MethodGet, ts.URL+"/cart", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cart status=%d", resp.StatusCode)
	}
	if !strings.Contains(string(raw), "Your cart is empty.") {
		t.Fatalf("cart body=%s", raw)
	}
}

func TestShop_LegacyWriteRoutes(t *testing.T) {
	ts := newShopTS(t, options{})
	c := newClient(t)

	var p catalog.Product
	{
		resp, raw := do(t, c, http.MethodPost, ts.URL+"/products", map[string]any{"name": "Old"}, nil)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create status=%d body=%s", resp.StatusCode, raw)
		}
		_ = json.Unmarshal(raw, &p)
	}

	{
		resp, raw := do(t, c, http.MethodPut, ts.URL+"/products/"+p.ID, map[string]any{"name": "New"}, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("update status=%d body=%s", resp.StatusCode, raw)
		}
		var got catalog.Product
		_ = json.Unmarshal(raw, &got)
		if got.Name == nil || *got.Name != "New" {
			t.Fatalf("update body=%s", raw)
		}
	}

	{
		resp, raw := do(t, c, http.MethodDelete, ts.URL+"/products/"+p.ID, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("delete status=%d body=%s", resp.StatusCode, raw)
		}
		var msg struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Message == "" {
			t.Fatalf("delete body=%s", raw)
		}
	}

	{
		resp, _ := do(t, c, http.MethodDelete, ts.URL+"/products/"+p.ID, nil, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("second delete status=%d", resp.StatusCode)
		}
	}
}

func TestShop_SessionCookieOnlyOnStorefront(t *testing.T) {
	ts := newShopTS(t, options{})
	c := &http.Client{}

	resp, _ := do(t, c, http.MethodGet, ts.URL+"/api/products", nil, nil)
	if len(resp.Cookies()) != 0 {
		t.Fatalf("api set cookies: %v", resp.Cookies())
	}

	resp, _ = do(t, c, http.MethodGet, ts.URL+"/products", nil, nil)
	if len(resp.Cookies()) != 1 || resp.Cookies()[0].Name != session.CookieName {
		t.Fatalf("storefront cookies: %v", resp.Cookies())
	}
}

func TestShop_Metrics(t *testing.T) {
	ts := newShopTS(t, options{})
	c := &http.Client{}

	do(t, c, http.MethodGet, ts.URL+"/api/products", nil, nil)

	resp, _ := do(t, c, http.MethodGet, ts.URL+"/metrics", nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("no token status=%d", resp.StatusCode)
	}

	resp, raw := do(t, c, http.MethodGet, ts.URL+"/metrics", nil, map[string]string{
		"Authorization": "Bearer " + metricsToken,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status=%d", resp.StatusCode)
	}
	if !strings.Contains(string(raw), `http_requests_total{method="GET",path="/api/products`) {
		t.Fatalf("route label missing: %s", raw)
	}
}

type downSessions struct {
	*session.MemoryStore
}

func (downSessions) Ping(context.Context) error { return errors.New("redis down") }

func TestShop_Health(t *testing.T) {
	c := &http.Client{}

	ts := newShopTS(t, options{})
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, _ := do(t, c, http.MethodGet, ts.URL+path, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status=%d", path, resp.StatusCode)
		}
	}

	down := newShopTS(t, options{sessions: downSessions{session.NewMemoryStore(time.Hour)}})
	resp, raw := do(t, c, http.MethodGet, down.URL+"/readyz", nil, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d", resp.StatusCode)
	}
	if !strings.Contains(string(raw), "session store not ready") {
		t.Fatalf("readyz body=%s", raw)
	}
}

func TestShop_StaticAndRoot(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "styles.css"), []byte("body{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "img"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	ts := newShopTS(t, options{staticDir: dir})
	c := newClient(t)

	resp, raw := do(t, c, http.MethodGet, ts.URL+"/styles.css", nil, nil)
	if resp.StatusCode != http.StatusOK || string(raw) != "body{}" {
		t.Fatalf("static status=%d body=%s", resp.StatusCode, raw)
	}

	resp, _ = do(t, c, http.MethodGet, ts.URL+"/img/", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("dir listing status=%d", resp.StatusCode)
	}

	resp, _ = do(t, c, http.MethodGet, ts.URL+"/", nil, nil)
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/products" {
		t.Fatalf("root status=%d location=%q", resp.StatusCode, resp.Header.Get("Location"))
	}
}
