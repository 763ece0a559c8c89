// Package browser drives a headless Chrome/Chromium instance for the
// ingestion stage: it opens a source portal, enumerates download links
// matching the configured file patterns, and fetches candidate bytes
// through the page session so portal cookies are honored.
package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// Automation is the browser surface the ingestion stage depends on. A
// value is scoped to one ingestion run; implementations are not safe
// for concurrent use and are never shared between runs.
type Automation interface {
	Launch(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	IdentifyDownloadable(ctx context.Context, patterns []string) ([]contracts.DownloadableFile, error)
	Download(ctx context.Context, url string) (contracts.DownloadedFile, error)
	Close() error
}

// Config holds browser configuration.
type Config struct {
	// DebuggerURL attaches to an already running Chrome instead of
	// launching one.
	DebuggerURL         string `json:"debugger_url" yaml:"debugger_url"`
	Bin                 string `json:"bin" yaml:"bin"`
	Headless            bool   `json:"headless" yaml:"headless"`
	ViewportWidth       int    `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight      int    `json:"viewport_height" yaml:"viewport_height"`
	NavigationTimeoutMs int    `json:"navigation_timeout_ms" yaml:"navigation_timeout_ms"`
	DownloadTimeoutMs   int    `json:"download_timeout_ms" yaml:"download_timeout_ms"`
}

// DefaultConfig returns sensible defaults for unattended runs.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		NavigationTimeoutMs: 30000,
		DownloadTimeoutMs:   120000,
	}
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// DownloadTimeout returns the per-file download timeout.
func (c Config) DownloadTimeout() time.Duration {
	if c.DownloadTimeoutMs <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.DownloadTimeoutMs) * time.Millisecond
}

// Available reports whether a browser binary can be found on this host.
func Available() (string, bool) {
	return launcher.LookPath()
}

// RodAutomation implements Automation over a go-rod controlled Chrome.
type RodAutomation struct {
	cfg     Config
	log     *slog.Logger
	browser *rod.Browser
	page    *rod.Page
}

// NewRod returns an unlaunched automation. Launch must be called before
// any other operation.
func NewRod(cfg Config, log *slog.Logger) *RodAutomation {
	if log == nil {
		log = slog.Default()
	}
	return &RodAutomation{cfg: cfg, log: log}
}

// Launch connects to an existing Chrome or launches a new one and opens
// a blank incognito page. Calling Launch on a live instance is a no-op.
func (b *RodAutomation) Launch(ctx context.Context) error {
	if b.browser != nil {
		if _, err := b.browser.Version(); err == nil {
			return nil
		}
		b.log.Warn("stale browser connection, relaunching")
		_ = b.Close()
	}

	controlURL := b.cfg.DebuggerURL
	if controlURL == "" {
		launch := launcher.New().Headless(b.cfg.Headless)
		if b.cfg.Bin != "" {
			launch = launch.Bin(b.cfg.Bin)
		}
		url, err := launch.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	incognito, err := browser.Incognito()
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             b.cfg.ViewportWidth,
		Height:            b.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		b.log.Warn("set viewport failed", "error", err)
	}

	b.browser = browser
	b.page = page
	return nil
}

// Navigate loads the given URL and waits for the page to finish loading.
func (b *RodAutomation) Navigate(ctx context.Context, url string) error {
	if b.page == nil {
		return errors.New("browser not launched")
	}
	page := b.page.Context(ctx).Timeout(b.cfg.NavigationTimeout())
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

// IdentifyDownloadable enumerates anchors on the current page and keeps
// those whose file name or link text matches any of the patterns.
// Candidates are returned in document order, deduplicated by URL.
func (b *RodAutomation) IdentifyDownloadable(ctx context.Context, patterns []string) ([]contracts.DownloadableFile, error) {
	if b.page == nil {
		return nil, errors.New("browser not launched")
	}

	res, err := b.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `
		() => Array.from(document.querySelectorAll('a[href]')).map((a) => ({
			href: a.href,
			text: (a.innerText || '').trim(),
		}))
		`,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate links: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal links: %w", err)
	}
	var anchors []struct {
		Href string `json:"href"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &anchors); err != nil {
		return nil, fmt.Errorf("decode links: %w", err)
	}

	seen := make(map[string]bool, len(anchors))
	var files []contracts.DownloadableFile
	for _, a := range anchors {
		if !strings.HasPrefix(a.Href, "http") || seen[a.Href] {
			continue
		}
		name := fileNameFromURL(a.Href)
		if !matchesPatterns(patterns, name, a.Text) {
			continue
		}
		seen[a.Href] = true
		if name == "" {
			name = a.Text
		}
		files = append(files, contracts.DownloadableFile{
			URL:      a.Href,
			FileName: name,
			Format:   formatForName(name),
		})
	}
	return files, nil
}

// Download fetches the URL from inside the page session, carrying the
// portal's cookies, and returns the decoded bytes.
func (b *RodAutomation) Download(ctx context.Context, url string) (contracts.DownloadedFile, error) {
	if b.page == nil {
		return contracts.DownloadedFile{}, errors.New("browser not launched")
	}

	res, err := b.page.Context(ctx).Timeout(b.cfg.DownloadTimeout()).Evaluate(&rod.EvalOptions{
		JS: `
		async (url) => {
			const res = await fetch(url, { credentials: 'include' });
			if (!res.ok) {
				return { status: res.status };
			}
			const disposition = res.headers.get('content-disposition') || '';
			const buf = await res.arrayBuffer();
			const bytes = new Uint8Array(buf);
			let binary = '';
			const chunk = 0x8000;
			for (let i = 0; i < bytes.length; i += chunk) {
				binary += String.fromCharCode.apply(null, bytes.subarray(i, i + chunk));
			}
			return { status: res.status, body: btoa(binary), disposition };
		}
		`,
		JSArgs:       []interface{}{url},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return contracts.DownloadedFile{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return contracts.DownloadedFile{}, fmt.Errorf("marshal fetch result: %w", err)
	}
	var out struct {
		Status      int    `json:"status"`
		Body        string `json:"body"`
		Disposition string `json:"disposition"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return contracts.DownloadedFile{}, fmt.Errorf("decode fetch result: %w", err)
	}
	if out.Body == "" {
		return contracts.DownloadedFile{}, fmt.Errorf("fetch %s: status %d", url, out.Status)
	}

	data, err := base64.StdEncoding.DecodeString(out.Body)
	if err != nil {
		return contracts.DownloadedFile{}, fmt.Errorf("decode body: %w", err)
	}

	name := dispositionFileName(out.Disposition)
	if name == "" {
		name = fileNameFromURL(url)
	}
	if name == "" {
		name = "download"
	}
	return contracts.DownloadedFile{
		Bytes:    data,
		FileName: name,
		Size:     int64(len(data)),
		Format:   formatForName(name),
	}, nil
}

// Close releases the page and the browser. Safe to call more than once
// and on a never-launched instance.
func (b *RodAutomation) Close() error {
	if b.page != nil {
		_ = b.page.Close()
		b.page = nil
	}
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	return err
}
