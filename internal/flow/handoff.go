package flow

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"github.com/pkg/browser"

	"github.com/BTreeMap/SalesCoach/internal/models"
)

// Handoff is how the user is sent to the conversation surface.
type Handoff string

const (
	// HandoffExternal opens a genuine session in a new, independent browsing context.
	// The avatar provider needs top-level permissions for camera and microphone, so a
	// genuine session is never embedded.
	HandoffExternal Handoff = "external"
	// HandoffDemo presents the built-in demo for placeholder URLs.
	HandoffDemo Handoff = "demo"
)

// DefaultDemoDomains are the hosts whose join URLs are placeholders.
var DefaultDemoDomains = []string{"demo.tavus.io"}

// HandoffFor picks the hand-off for a join URL. Empty URLs and URLs whose host is one of
// demoDomains (or a subdomain of one) are demos; everything else is external.
func HandoffFor(joinURL string, demoDomains []string) Handoff {
	joinURL = strings.TrimSpace(joinURL)
	if joinURL == "" {
		return HandoffDemo
	}
	u, err := url.Parse(joinURL)
	if err != nil || u.Host == "" {
		// Unparseable URLs fall back to a plain substring match.
		for _, d := range demoDomains {
			if d != "" && strings.Contains(joinURL, d) {
				return HandoffDemo
			}
		}
		return HandoffExternal
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range demoDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return HandoffDemo
		}
	}
	return HandoffExternal
}

// Opener presents the conversation surface to the user.
type Opener interface {
	OpenExternal(joinURL string) error
	ShowDemo(conv *models.Conversation) error
}

// BrowserOpener opens join URLs in the system browser and prints a QR code so the
// session can be joined from a phone.
type BrowserOpener struct {
	out       io.Writer
	noBrowser bool
	qr        bool
	open      func(string) error
}

// BrowserOpenerOption configures a BrowserOpener.
type BrowserOpenerOption func(*BrowserOpener)

// WithoutBrowser only prints the URL.
func WithoutBrowser() BrowserOpenerOption {
	return func(o *BrowserOpener) { o.noBrowser = true }
}

// WithQRCode toggles the terminal QR code.
func WithQRCode(enabled bool) BrowserOpenerOption {
	return func(o *BrowserOpener) { o.qr = enabled }
}

// NewBrowserOpener creates a BrowserOpener writing to out.
func NewBrowserOpener(out io.Writer, opts ...BrowserOpenerOption) *BrowserOpener {
	o := &BrowserOpener{out: out, qr: true, open: browser.OpenURL}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OpenExternal implements Opener.
func (o *BrowserOpener) OpenExternal(joinURL string) error {
	fmt.Fprintf(o.out, "Join your conversation at:\n  %s\n", joinURL)
	if o.qr {
		qrterminal.GenerateHalfBlock(joinURL, qrterminal.L, o.out)
	}
	if o.noBrowser {
		return nil
	}
	if err := o.open(joinURL); err != nil {
		slog.Warn("BrowserOpener.OpenExternal: failed to open browser", "url", joinURL, "error", err)
		return fmt.Errorf("failed to open browser: %w", err)
	}
	slog.Debug("BrowserOpener.OpenExternal: browser opened", "url", joinURL)
	return nil
}

// ShowDemo implements Opener.
func (o *BrowserOpener) ShowDemo(conv *models.Conversation) error {
	fmt.Fprintln(o.out, "Demo mode: the avatar service is not available for this simulation.")
	if conv != nil {
		fmt.Fprintf(o.out, "Conversation %d was created; end it with `salescoach end %d` to get feedback.\n", conv.ID, conv.ID)
	}
	return nil
}
