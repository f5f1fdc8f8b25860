package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const loginHTML = `<!doctype html><html><body>
<form>
  <input name="text" autocomplete="username">
  <a href="next/password"><div role="button" data-testid="auth-next"><span>Next</span></div></a>
  <div role="button"><span>Help</span></div>
</form>
</body></html>`

const passwordHTML = `<html><body><input type="password" name="password"><h1>Enter your password</h1></body></html>`

// uaRecorder remembers the last User-Agent the fixture server saw.
type uaRecorder struct {
	mu sync.Mutex
	ua string
}

func (u *uaRecorder) set(ua string) {
	u.mu.Lock()
	u.ua = ua
	u.mu.Unlock()
}

func (u *uaRecorder) get() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.ua
}

func fixtureServer(t *testing.T) (*httptest.Server, *uaRecorder) {
	t.Helper()
	lastUA := &uaRecorder{}
	mux := http.NewServeMux()
	mux.HandleFunc("/flow/login", func(w http.ResponseWriter, r *http.Request) {
		lastUA.set(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, loginHTML)
	})
	mux.HandleFunc("/flow/next/password", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, passwordHTML)
	})
	mux.HandleFunc("/api/data.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, lastUA
}

func launchHTTP(t *testing.T, srv *httptest.Server, ua string) Session {
	t.Helper()
	s, err := NewHTTPDriver(srv.Client()).Launch(context.Background(), LaunchOptions{UserAgent: ua})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHTTPDriver_Name(t *testing.T) {
	if got := NewHTTPDriver(nil).Name(); got != "http" {
		t.Errorf("Name() = %q, want http", got)
	}
}

func TestHTTPSession_FindCSS(t *testing.T) {
	srv, lastUA := fixtureServer(t)
	s := launchHTTP(t, srv, "TrendBot/1.0")
	ctx := context.Background()

	if err := s.Navigate(ctx, srv.URL+"/flow/login"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if err := s.WaitLoad(ctx); err != nil {
		t.Fatalf("WaitLoad: %v", err)
	}
	if got := lastUA.get(); got != "TrendBot/1.0" {
		t.Errorf("User-Agent = %q, want TrendBot/1.0", got)
	}

	if _, err := s.Find(ctx, CSS(`input[autocomplete="username"]`)); err != nil {
		t.Errorf("username field not found: %v", err)
	}
	if _, err := s.Find(ctx, CSS(`input[type="password"]`)); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing element: err = %v, want ErrNotFound", err)
	}
}

func TestHTTPSession_TextLocator(t *testing.T) {
	srv, _ := fixtureServer(t)
	s := launchHTTP(t, srv, "")
	ctx := context.Background()
	if err := s.Navigate(ctx, srv.URL+"/flow/login"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	els, err := s.FindAll(ctx, Text(`[role="button"]`, "Next"))
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(els) != 1 {
		t.Fatalf("got %d elements, want 1", len(els))
	}
	txt, err := els[0].Text(ctx)
	if err != nil || txt != "Next" {
		t.Errorf("Text() = %q, %v; want Next", txt, err)
	}

	all, err := s.FindAll(ctx, CSS(`[role="button"]`))
	if err != nil || len(all) != 2 {
		t.Errorf("FindAll(role=button) = %d, %v; want 2 elements", len(all), err)
	}
}

func TestHTTPSession_XPathUnsupported(t *testing.T) {
	srv, _ := fixtureServer(t)
	s := launchHTTP(t, srv, "")
	ctx := context.Background()
	if err := s.Navigate(ctx, srv.URL+"/flow/login"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	_, err := s.Find(ctx, XPath(`//input[@name='text']`))
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("xpath: err = %v, want unsupported error", err)
	}
}

func TestHTTPSession_ClickFollowsRelativeLink(t *testing.T) {
	srv, _ := fixtureServer(t)
	s := launchHTTP(t, srv, "")
	ctx := context.Background()
	if err := s.Navigate(ctx, srv.URL+"/flow/login"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	next, err := s.Find(ctx, CSS(`[data-testid="auth-next"]`))
	if err != nil {
		t.Fatalf("Find next: %v", err)
	}
	if err := next.Click(ctx); err != nil {
		t.Fatalf("Click: %v", err)
	}
	if _, err := s.Find(ctx, CSS(`input[type="password"]`)); err != nil {
		t.Errorf("password page not loaded after click: %v", err)
	}
}

func TestHTTPSession_TypeSetsValue(t *testing.T) {
	srv, _ := fixtureServer(t)
	s := launchHTTP(t, srv, "")
	ctx := context.Background()
	if err := s.Navigate(ctx, srv.URL+"/flow/login"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	el, err := s.Find(ctx, CSS(`input[name="text"]`))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if err := el.Type(ctx, "trendbot"); err != nil {
		t.Fatalf("Type: %v", err)
	}
	if _, err := s.Find(ctx, CSS(`input[value="trendbot"]`)); err != nil {
		t.Errorf("typed value not reflected in document: %v", err)
	}
}

func TestHTTPSession_NavigateRejectsNonHTML(t *testing.T) {
	srv, _ := fixtureServer(t)
	s := launchHTTP(t, srv, "")
	ctx := context.Background()

	if err := s.Navigate(ctx, srv.URL+"/api/data.json"); err == nil {
		t.Error("expected error for JSON response")
	}
	if err := s.Navigate(ctx, srv.URL+"/missing"); err == nil {
		t.Error("expected error for 404 response")
	}
	if _, err := s.Find(ctx, CSS("input")); err == nil {
		t.Error("Find with no page loaded should fail")
	}
}

func TestHTTPSession_ClosedSession(t *testing.T) {
	srv, _ := fixtureServer(t)
	s := launchHTTP(t, srv, "")
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	err := s.Navigate(context.Background(), srv.URL+"/flow/login")
	if err == nil || !strings.Contains(err.Error(), "closed") {
		t.Errorf("Navigate after Close: err = %v, want closed error", err)
	}
}

func TestHTTPDriver_LaunchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHTTPDriver(nil).Launch(ctx, LaunchOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Launch with canceled ctx: err = %v", err)
	}
}

func TestIsHTMLContentType(t *testing.T) {
	tests := []struct {
		ct   string
		want bool
	}{
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"application/xhtml+xml", true},
		{"TEXT/HTML", true},
		{"application/json", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isHTMLContentType(tt.ct); got != tt.want {
			t.Errorf("isHTMLContentType(%q) = %v, want %v", tt.ct, got, tt.want)
		}
	}
}

func TestLocatorString(t *testing.T) {
	tests := []struct {
		loc  Locator
		want string
	}{
		{CSS(`input[name="text"]`), `css:input[name="text"]`},
		{XPath(`//span`), `xpath://span`},
		{Text(`[role="button"]`, "Next"), `text:[role="button"]~"Next"`},
	}
	for _, tt := range tests {
		if got := tt.loc.String(); got != tt.want {
			t.Errorf("String() = %s, want %s", got, tt.want)
		}
	}
}

func TestBlockedSet(t *testing.T) {
	set := blockedSet([]string{"Image", "Font", "Stylesheet", "Script", "Bogus"})
	if len(set) != 2 {
		t.Errorf("blockedSet size = %d, want 2 (Image, Font)", len(set))
	}
	if len(blockedSet(nil)) != 0 {
		t.Error("nil input should block nothing")
	}
}
