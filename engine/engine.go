package engine

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Session.Find when no element matches the
// locator at the moment of the lookup.
var ErrNotFound = errors.New("element not found")

// LocatorKind selects how a Locator expression is interpreted.
type LocatorKind string

const (
	// KindCSS is a CSS selector, e.g. input[name="text"].
	KindCSS LocatorKind = "css"
	// KindXPath is an XPath expression.
	KindXPath LocatorKind = "xpath"
	// KindText matches elements whose rendered text contains Text,
	// restricted to elements matching the CSS selector in Expr.
	KindText LocatorKind = "text"
)

// Locator identifies zero or more elements on a rendered page.
type Locator struct {
	Kind LocatorKind
	Expr string
	Text string // only for KindText
}

// CSS returns a CSS locator.
func CSS(expr string) Locator { return Locator{Kind: KindCSS, Expr: expr} }

// XPath returns an XPath locator.
func XPath(expr string) Locator { return Locator{Kind: KindXPath, Expr: expr} }

// Text returns a locator matching elements selected by css whose text
// contains text.
func Text(css, text string) Locator { return Locator{Kind: KindText, Expr: css, Text: text} }

func (l Locator) String() string {
	if l.Kind == KindText {
		return fmt.Sprintf("text:%s~%q", l.Expr, l.Text)
	}
	return string(l.Kind) + ":" + l.Expr
}

// Viewport is a window size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// LaunchOptions configures a new browser session.
type LaunchOptions struct {
	Viewport  Viewport
	UserAgent string
	Headless  bool
}

// Driver launches browser sessions. Each call returns a session that is
// exclusively owned by the caller.
type Driver interface {
	// Name returns the engine identifier (e.g. "rod", "http").
	Name() string

	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}

// Session is one live browser page.
type Session interface {
	Navigate(ctx context.Context, url string) error

	// WaitLoad blocks until the page's load/network activity settles.
	WaitLoad(ctx context.Context) error

	// Find returns the first element matching loc without waiting.
	Find(ctx context.Context, loc Locator) (Element, error)

	// FindAll returns every element matching loc, in document order.
	FindAll(ctx context.Context, loc Locator) ([]Element, error)

	// Close releases the page and the browser behind it.
	Close() error
}

// Element is a handle to a located node.
type Element interface {
	Type(ctx context.Context, text string) error
	Click(ctx context.Context) error
	Text(ctx context.Context) (string, error)
}
