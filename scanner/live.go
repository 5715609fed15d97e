package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/domtarget/element"
)

// LiveConfig controls the live browser scanner.
type LiveConfig struct {
	// RemoteURL connects to an existing Chrome DevTools endpoint.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string `yaml:"remote_url"`
	// Headful runs with a visible window. Default is headless.
	Headful     bool          `yaml:"headful"`
	NavTimeout  time.Duration `yaml:"nav_timeout"`
	MaxElements int           `yaml:"max_elements"`
}

func (c *LiveConfig) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.MaxElements <= 0 {
		c.MaxElements = 500
	}
}

// Live drives a real browser and extracts rendered element semantics:
// geometry, cumulative opacity, computed visibility — everything a static
// parse cannot know. One Live manages one browser with one page per context.
// Implements the bounds resolver's LiveDOM interface.
type Live struct {
	cfg    LiveConfig
	logger *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	pages   map[string]*rod.Page
}

// Registrar receives scanned elements. Satisfied by match.Matcher and
// elemindex.Index.
type Registrar interface {
	RegisterElement(contextID string, sem element.Semantics)
}

// NewLive creates a Live scanner. Call Start before use.
func NewLive(cfg LiveConfig, logger *slog.Logger) *Live {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Live{
		cfg:    cfg,
		logger: logger,
		pages:  make(map[string]*rod.Page),
	}
}

// Start launches or connects to Chrome.
func (l *Live) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.browser != nil {
		return nil
	}

	wsURL := l.cfg.RemoteURL
	if wsURL == "" {
		ln := launcher.New().
			Headless(!l.cfg.Headful).
			Set("disable-blink-features", "AutomationControlled")
		u, err := ln.Launch()
		if err != nil {
			return fmt.Errorf("scanner: launch chrome: %w", err)
		}
		wsURL = u
		l.lnch = ln
		l.logger.Info("scanner: launched local chrome", "url", wsURL, "headful", l.cfg.Headful)
	} else {
		l.logger.Info("scanner: connecting to remote chrome", "url", wsURL)
	}

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("scanner: connect: %w", err)
	}
	l.browser = b
	return nil
}

// Open creates a stealth page for a context and navigates it. An existing
// page for the context is closed first.
func (l *Live) Open(ctx context.Context, contextID, pageURL string) error {
	l.mu.Lock()
	b := l.browser
	old := l.pages[contextID]
	l.mu.Unlock()

	if b == nil {
		return fmt.Errorf("scanner: not started")
	}
	if old != nil {
		old.Close()
	}

	page, err := stealth.Page(b)
	if err != nil {
		return fmt.Errorf("scanner: create page: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, l.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return fmt.Errorf("scanner: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		l.logger.Warn("scanner: wait load timeout", "url", pageURL, "error", err)
	}

	l.mu.Lock()
	l.pages[contextID] = page
	l.mu.Unlock()
	return nil
}

// Elements scans the context's page and returns rendered semantics plus the
// current page URL. This is the bounds resolver's live-DOM query.
func (l *Live) Elements(ctx context.Context, contextID string) ([]element.Semantics, string, error) {
	l.mu.Lock()
	page := l.pages[contextID]
	l.mu.Unlock()
	if page == nil {
		return nil, "", fmt.Errorf("scanner: no page for context %q", contextID)
	}

	info, err := page.Context(ctx).Info()
	if err != nil {
		return nil, "", fmt.Errorf("scanner: page info: %w", err)
	}

	res, err := page.Context(ctx).Eval(scanScript, l.cfg.MaxElements)
	if err != nil {
		return nil, "", fmt.Errorf("scanner: eval scan: %w", err)
	}

	var elements []element.Semantics
	if err := json.Unmarshal([]byte(res.Value.Str()), &elements); err != nil {
		return nil, "", fmt.Errorf("scanner: decode scan: %w", err)
	}
	return elements, info.URL, nil
}

// ScanInto scans the context's page and registers every element. Returns the
// number of elements registered.
func (l *Live) ScanInto(ctx context.Context, contextID string, r Registrar) (int, error) {
	elements, _, err := l.Elements(ctx, contextID)
	if err != nil {
		return 0, err
	}
	for _, sem := range elements {
		r.RegisterElement(contextID, sem)
	}
	l.logger.Debug("scanner: scan complete", "context_id", contextID, "elements", len(elements))
	return len(elements), nil
}

// CloseContext closes one context's page.
func (l *Live) CloseContext(contextID string) {
	l.mu.Lock()
	page := l.pages[contextID]
	delete(l.pages, contextID)
	l.mu.Unlock()
	if page != nil {
		page.Close()
	}
}

// Close shuts down all pages and the browser.
func (l *Live) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, page := range l.pages {
		page.Close()
		delete(l.pages, id)
	}
	if l.browser != nil {
		if err := l.browser.Close(); err != nil {
			return fmt.Errorf("scanner: close browser: %w", err)
		}
		l.browser = nil
	}
	if l.lnch != nil {
		l.lnch.Cleanup()
		l.lnch = nil
	}
	return nil
}

// scanScript runs in the page and serialises rendered semantics for every
// interesting element. The selector scheme mirrors the static snapshot:
// tag#id when an id exists, otherwise tag + classes + one disambiguating
// attribute — always within the subset the selector package parses.
const scanScript = `(maxElements) => {
	const esc = (v) => String(v).replace(/\\/g, '\\\\').replace(/"/g, '\\"');

	const selectorFor = (el) => {
		const tag = el.tagName.toLowerCase();
		if (el.id) return tag + '#' + el.id;
		let sel = tag;
		for (const c of el.classList) sel += '.' + c;
		const name = el.getAttribute('name');
		const type = el.getAttribute('type');
		const ph = el.getAttribute('placeholder');
		if (name) sel += '[name="' + esc(name) + '"]';
		else if (type) sel += '[type="' + esc(type) + '"]';
		else if (ph) sel += '[placeholder="' + esc(ph) + '"]';
		return sel;
	};

	const cumulativeOpacity = (el) => {
		let o = 1.0;
		for (let n = el; n && n.nodeType === 1; n = n.parentElement) {
			o *= parseFloat(getComputedStyle(n).opacity) || 1.0;
		}
		return o;
	};

	const nearbyText = (el) => {
		const prev = el.previousElementSibling;
		const next = el.nextElementSibling;
		let text = '';
		if (prev && prev.textContent) text += prev.textContent.trim();
		if (next && next.textContent) text += (text ? ' ' : '') + next.textContent.trim();
		return text.slice(0, 120);
	};

	const labelText = (el) => {
		if (el.labels && el.labels.length > 0) return el.labels[0].textContent.trim();
		const wrap = el.closest('label');
		return wrap ? wrap.textContent.trim() : '';
	};

	const interesting = (el) => {
		const tag = el.tagName.toLowerCase();
		if (['a', 'button', 'input', 'select', 'textarea', 'img'].includes(tag)) return true;
		if (el.hasAttribute('role') || el.hasAttribute('onclick')) return true;
		if (el.getAttribute('contenteditable') === 'true') return true;
		return tag.includes('-');
	};

	const out = [];
	for (const el of document.querySelectorAll('*')) {
		if (out.length >= maxElements) break;
		if (!interesting(el)) continue;

		const rect = el.getBoundingClientRect();
		const style = getComputedStyle(el);
		out.push({
			selector: selectorFor(el),
			tag: el.tagName.toLowerCase(),
			type: (el.getAttribute('type') || '').toLowerCase(),
			text: (el.textContent || '').trim().slice(0, 200),
			placeholder: el.getAttribute('placeholder') || '',
			title: el.getAttribute('title') || '',
			aria_label: el.getAttribute('aria-label') || '',
			name: el.getAttribute('name') || '',
			id: el.id || '',
			value: el.value !== undefined ? String(el.value).slice(0, 200) : '',
			nearby_text: nearbyText(el),
			label_for: labelText(el),
			x: Math.round(rect.x),
			y: Math.round(rect.y),
			width: Math.round(rect.width),
			height: Math.round(rect.height),
			visible: rect.width > 0 && rect.height > 0 &&
				style.display !== 'none' && style.visibility !== 'hidden',
			opacity: cumulativeOpacity(el),
			z_index: parseInt(style.zIndex, 10) || 0,
			display: style.display,
			visibility: style.visibility,
			transform: style.transform === 'none' ? '' : style.transform,
			classes: Array.from(el.classList),
			outer_html: el.outerHTML.slice(0, 1024),
		});
	}
	return JSON.stringify(out);
}`
