package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/html"
)

// HTTPDriver is a JavaScript-free engine. It fetches pages with a
// Chrome-like TLS fingerprint and evaluates locators against the served
// HTML. It suits pre-rendered mirrors of the target pages; it cannot
// drive a client-rendered login flow.
type HTTPDriver struct {
	client *http.Client
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewHTTPDriver creates an HTTPDriver. A nil client selects the default
// fingerprinted transport.
func NewHTTPDriver(client *http.Client) *HTTPDriver {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				DialTLSContext:    dialChromeTLS,
				ForceAttemptHTTP2: false,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		}
	}
	return &HTTPDriver{client: client}
}

func dialChromeTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

func (d *HTTPDriver) Name() string { return "http" }

// Launch returns an empty session. Viewport is meaningless without a
// renderer and is ignored.
func (d *HTTPDriver) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &httpSession{client: d.client, userAgent: opts.UserAgent}, nil
}

type httpSession struct {
	client    *http.Client
	userAgent string

	mu      sync.Mutex
	doc     *goquery.Document
	pageURL *url.URL
	closed  bool
}

func (s *httpSession) Navigate(ctx context.Context, target string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("http_engine: session closed")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("http_engine: build request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http_engine: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 || !isHTMLContentType(resp.Header.Get("Content-Type")) {
		return fmt.Errorf("http_engine: non-html or error status %d (content-type: %s)",
			resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	// Read body with a 10 MB limit to prevent unbounded memory use.
	const maxBody = 10 << 20
	root, err := html.Parse(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("http_engine: parse html: %w", err)
	}

	s.mu.Lock()
	s.doc = goquery.NewDocumentFromNode(root)
	s.pageURL = resp.Request.URL
	s.mu.Unlock()
	return nil
}

// WaitLoad is immediate: the whole document is available once Navigate
// returns.
func (s *httpSession) WaitLoad(ctx context.Context) error {
	return ctx.Err()
}

func (s *httpSession) Find(ctx context.Context, loc Locator) (Element, error) {
	els, err := s.FindAll(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, ErrNotFound
	}
	return els[0], nil
}

func (s *httpSession) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()
	if doc == nil {
		return nil, fmt.Errorf("http_engine: no page loaded")
	}

	var sel *goquery.Selection
	switch loc.Kind {
	case KindCSS:
		m, err := cascadia.Compile(loc.Expr)
		if err != nil {
			return nil, fmt.Errorf("http_engine: bad selector %q: %w", loc.Expr, err)
		}
		sel = doc.FindMatcher(m)
	case KindText:
		css := loc.Expr
		if css == "" {
			css = "*"
		}
		m, err := cascadia.Compile(css)
		if err != nil {
			return nil, fmt.Errorf("http_engine: bad selector %q: %w", css, err)
		}
		sel = doc.FindMatcher(m).FilterFunction(func(_ int, el *goquery.Selection) bool {
			return strings.Contains(el.Text(), loc.Text)
		})
	default:
		return nil, fmt.Errorf("http_engine: %s locators are not supported", loc.Kind)
	}

	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, el *goquery.Selection) {
		out = append(out, &httpElement{session: s, sel: el})
	})
	return out, nil
}

func (s *httpSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.doc = nil
	return nil
}

// resolve turns href into an absolute URL relative to the current page.
func (s *httpSession) resolve(href string) (string, error) {
	s.mu.Lock()
	base := s.pageURL
	s.mu.Unlock()
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	if base == nil {
		return ref.String(), nil
	}
	return base.ResolveReference(ref).String(), nil
}

type httpElement struct {
	session *httpSession
	sel     *goquery.Selection
}

// Type stores the text as the element's value attribute.
func (e *httpElement) Type(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.sel.SetAttr("value", text)
	return nil
}

// Click follows the nearest enclosing link, if any; otherwise it is a no-op.
func (e *httpElement) Click(ctx context.Context) error {
	link := e.sel.Closest("a[href]")
	href, ok := link.Attr("href")
	if !ok || href == "" {
		return ctx.Err()
	}
	target, err := e.session.resolve(href)
	if err != nil {
		return fmt.Errorf("http_engine: bad link %q: %w", href, err)
	}
	return e.session.Navigate(ctx, target)
}

func (e *httpElement) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(e.sel.Text()), nil
}

// isHTMLContentType returns true if the content-type header looks like HTML.
func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}
