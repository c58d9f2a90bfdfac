package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/antonkk/formpilot/api/schemas"
)

// CDPAutomator implements Automator on a chromedp session context. It tags
// enumerated elements with a data attribute so later interactions address
// exactly the node that was discovered, the same way a stable temporary id
// would.
type CDPAutomator struct {
	sessionCtx context.Context
	logger     *zap.Logger
}

var _ Automator = (*CDPAutomator)(nil)

// NewCDPAutomator wraps an active chromedp session context.
func NewCDPAutomator(sessionCtx context.Context, logger *zap.Logger) *CDPAutomator {
	return &CDPAutomator{
		sessionCtx: sessionCtx,
		logger:     logger.Named("cdp"),
	}
}

// run executes actions on the session context but honors the caller's
// deadline and cancellation.
func (a *CDPAutomator) run(ctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(a.sessionCtx, actions...) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (a *CDPAutomator) eval(ctx context.Context, js string, out interface{}) error {
	return a.run(ctx, chromedp.Evaluate(js, out))
}

// jsStr safely embeds a Go string into generated JavaScript.
func jsStr(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (a *CDPAutomator) Navigate(ctx context.Context, url string) error {
	if err := a.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (a *CDPAutomator) Location(ctx context.Context) (string, error) {
	var loc string
	if err := a.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// enumerateJS tags every control in scope with a data-fp-id attribute and
// reports its geometry and identity attributes. Re-running it refreshes the
// tags, so handles from an earlier pass stay addressable only if the node
// itself survived.
const enumerateJS = `(() => {
	if (!window.__fpSeq) window.__fpSeq = 0;
	const out = [];
	for (const el of document.querySelectorAll(%s)) {
		let id = el.getAttribute('data-fp-id');
		if (!id) {
			id = 'fp-' + (++window.__fpSeq);
			el.setAttribute('data-fp-id', id);
		}
		const r = el.getBoundingClientRect();
		const cs = window.getComputedStyle(el);
		out.push({
			id: id,
			tag: el.tagName.toLowerCase(),
			type: (el.getAttribute('type') || '').toLowerCase(),
			role: (el.getAttribute('role') || '').toLowerCase(),
			name: el.getAttribute('name') || '',
			x: r.left + window.scrollX,
			y: r.top + window.scrollY,
			visible: r.width > 0 && r.height > 0 && cs.visibility !== 'hidden' && cs.display !== 'none',
		});
	}
	return out;
})()`

type enumeratedNode struct {
	ID      string  `json:"id"`
	Tag     string  `json:"tag"`
	Type    string  `json:"type"`
	Role    string  `json:"role"`
	Name    string  `json:"name"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Visible bool    `json:"visible"`
}

func (a *CDPAutomator) Enumerate(ctx context.Context, scope string) ([]Candidate, error) {
	var nodes []enumeratedNode
	if err := a.eval(ctx, fmt.Sprintf(enumerateJS, jsStr(scope)), &nodes); err != nil {
		return nil, fmt.Errorf("enumerate: %w", err)
	}
	candidates := make([]Candidate, 0, len(nodes))
	for _, n := range nodes {
		candidates = append(candidates, Candidate{
			Ref: ElementRef{
				Selector: fmt.Sprintf(`[data-fp-id=%q]`, n.ID),
				Tag:      n.Tag,
				X:        n.X,
				Y:        n.Y,
			},
			InputType: n.Type,
			Role:      n.Role,
			Name:      n.Name,
			Visible:   n.Visible,
		})
	}
	a.logger.Debug("Enumerated controls.", zap.Int("count", len(candidates)))
	return candidates, nil
}

func (a *CDPAutomator) ReadAttribute(ctx context.Context, ref ElementRef, name string) (string, bool, error) {
	var value string
	var ok bool
	if err := a.run(ctx, chromedp.AttributeValue(ref.Selector, name, &value, &ok, chromedp.ByQuery)); err != nil {
		return "", false, err
	}
	return value, ok, nil
}

func (a *CDPAutomator) ReadText(ctx context.Context, ref ElementRef) (string, error) {
	var text string
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return el ? (el.innerText || el.textContent || '').trim() : '';
	})()`, jsStr(ref.Selector))
	if err := a.eval(ctx, js, &text); err != nil {
		return "", err
	}
	return text, nil
}

// readValueJS reads the committed value: selected option text for selects,
// "checked"/"" for checkboxes and radios, the rendered single-value for
// combobox widgets, otherwise the raw input value.
const readValueJS = `(() => {
	const el = document.querySelector(%s);
	if (!el) return '';
	const tag = el.tagName.toLowerCase();
	if (tag === 'select') {
		if (el.multiple) {
			return Array.from(el.selectedOptions).map(o => o.text.trim()).join(', ');
		}
		const o = el.options[el.selectedIndex];
		return o ? o.text.trim() : '';
	}
	const type = (el.getAttribute('type') || '').toLowerCase();
	if (type === 'checkbox' || type === 'radio') return el.checked ? 'checked' : '';
	if (el.value) return el.value;
	const root = el.closest('[class*="select"], [class*="combobox"], [class*="autocomplete"]');
	if (root) {
		const sv = root.querySelector('[class*="single-value"], [class*="selected-value"]');
		if (sv) return (sv.textContent || '').trim();
	}
	return '';
})()`

func (a *CDPAutomator) ReadValue(ctx context.Context, ref ElementRef) (string, error) {
	var value string
	if err := a.eval(ctx, fmt.Sprintf(readValueJS, jsStr(ref.Selector)), &value); err != nil {
		return "", err
	}
	return value, nil
}

func (a *CDPAutomator) Checked(ctx context.Context, ref ElementRef) (bool, error) {
	var checked bool
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return !!(el && el.checked);
	})()`, jsStr(ref.Selector))
	if err := a.eval(ctx, js, &checked); err != nil {
		return false, err
	}
	return checked, nil
}

// validityJS prefers the control's native validation message, then the
// aria-invalid + aria-describedby error text convention used by custom
// widgets.
const validityJS = `(() => {
	const el = document.querySelector(%s);
	if (!el) return '';
	if (typeof el.checkValidity === 'function' && !el.checkValidity()) {
		return el.validationMessage || 'invalid';
	}
	if (el.getAttribute('aria-invalid') === 'true') {
		const ref = el.getAttribute('aria-describedby') || el.getAttribute('aria-errormessage');
		if (ref) {
			const msg = document.getElementById(ref.split(/\s+/)[0]);
			if (msg) return (msg.innerText || '').trim() || 'invalid';
		}
		return 'invalid';
	}
	return '';
})()`

func (a *CDPAutomator) ValidityMessage(ctx context.Context, ref ElementRef) (string, error) {
	var msg string
	if err := a.eval(ctx, fmt.Sprintf(validityJS, jsStr(ref.Selector)), &msg); err != nil {
		return "", err
	}
	return msg, nil
}

const associatedLabelJS = `(() => {
	const el = document.querySelector(%s);
	if (!el) return '';
	if (el.id) {
		const l = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
		if (l) return (l.innerText || '').trim();
	}
	const anc = el.closest('label');
	return anc ? (anc.innerText || '').trim() : '';
})()`

func (a *CDPAutomator) AssociatedLabel(ctx context.Context, ref ElementRef) (string, error) {
	var label string
	if err := a.eval(ctx, fmt.Sprintf(associatedLabelJS, jsStr(ref.Selector)), &label); err != nil {
		return "", err
	}
	return label, nil
}

// precedingTextJS walks backwards through siblings and ancestors looking for
// the nearest visible text, taking the last line of any block it finds so a
// long paragraph above the control does not swallow the question text.
const precedingTextJS = `(() => {
	const el = document.querySelector(%s);
	if (!el) return '';
	let node = el;
	let hops = 0;
	while (node && hops < 60) {
		let sib = node.previousSibling;
		while (sib && hops < 60) {
			hops++;
			let t = '';
			if (sib.nodeType === Node.TEXT_NODE) {
				t = sib.textContent || '';
			} else if (sib.nodeType === Node.ELEMENT_NODE) {
				const cs = window.getComputedStyle(sib);
				if (cs.display !== 'none' && cs.visibility !== 'hidden') t = sib.innerText || '';
			}
			t = t.trim();
			if (t) {
				const lines = t.split('\n').map(s => s.trim()).filter(Boolean);
				return lines[lines.length - 1];
			}
			sib = sib.previousSibling;
		}
		node = node.parentElement;
		hops++;
	}
	return '';
})()`

func (a *CDPAutomator) PrecedingText(ctx context.Context, ref ElementRef) (string, error) {
	var text string
	if err := a.eval(ctx, fmt.Sprintf(precedingTextJS, jsStr(ref.Selector)), &text); err != nil {
		return "", err
	}
	return text, nil
}

// optionsJS resolves the option set that structurally belongs to the control:
// <option> children, the radio group sharing the control's name, or the
// listbox the control owns via aria-controls/aria-owns (falling back to a
// listbox inside the widget's own subtree). It never matches a page-global
// option list; "ambiguous" is reported instead when ownership cannot be
// pinned to exactly one listbox.
const optionsJS = `(() => {
	const el = document.querySelector(%s);
	if (!el) return { ok: false, ambiguous: false, options: [] };
	const tag = el.tagName.toLowerCase();
	if (tag === 'select') {
		const opts = Array.from(el.options).map(o => o.text.trim())
			.filter(t => t && !/^select(\.{3}|…)?$/i.test(t));
		return { ok: true, ambiguous: false, options: opts };
	}
	const labelFor = (r) => {
		if (r.id) {
			const l = document.querySelector('label[for="' + CSS.escape(r.id) + '"]');
			if (l) return (l.innerText || '').trim();
		}
		const anc = r.closest('label');
		return anc ? (anc.innerText || '').trim() : (r.value || '');
	};
	const type = (el.getAttribute('type') || '').toLowerCase();
	if (type === 'radio' && el.name) {
		const group = document.querySelectorAll('input[type="radio"][name="' + CSS.escape(el.name) + '"]');
		return { ok: true, ambiguous: false, options: Array.from(group).map(labelFor) };
	}
	let list = null;
	const owns = el.getAttribute('aria-controls') || el.getAttribute('aria-owns');
	if (owns) list = document.getElementById(owns.split(/\s+/)[0]);
	if (!list) {
		const root = el.closest('[class*="select"], [class*="combobox"], [class*="autocomplete"]');
		if (root) {
			const found = root.querySelectorAll('[role="listbox"]');
			if (found.length === 1) list = found[0];
			else if (found.length > 1) return { ok: false, ambiguous: true, options: [] };
		}
	}
	if (!list) {
		const open = document.querySelectorAll('[role="listbox"]');
		return { ok: false, ambiguous: open.length > 1, options: [] };
	}
	const opts = Array.from(list.querySelectorAll('[role="option"]'))
		.map(o => (o.innerText || '').trim())
		.filter(t => t && t.toLowerCase() !== 'no options');
	return { ok: true, ambiguous: false, options: opts };
})()`

type optionsResult struct {
	OK        bool     `json:"ok"`
	Ambiguous bool     `json:"ambiguous"`
	Options   []string `json:"options"`
}

func (a *CDPAutomator) ListOptions(ctx context.Context, ref ElementRef) ([]string, error) {
	var res optionsResult
	if err := a.eval(ctx, fmt.Sprintf(optionsJS, jsStr(ref.Selector)), &res); err != nil {
		return nil, err
	}
	if res.Ambiguous {
		return nil, fmt.Errorf("listbox ownership for %s: %w", ref.Selector, schemas.ErrTargetAmbiguous)
	}
	if !res.OK {
		return nil, nil
	}
	return res.Options, nil
}

// clickOptionJS activates the owned option whose text matches exactly. Same
// ownership rules as optionsJS.
const clickOptionJS = `(() => {
	const el = document.querySelector(%s);
	if (!el) return 'gone';
	const want = %s;
	const tag = el.tagName.toLowerCase();
	if (tag === 'select') {
		for (const o of el.options) {
			if (o.text.trim() === want) {
				if (el.multiple) {
					o.selected = true;
				} else {
					el.value = o.value;
				}
				el.dispatchEvent(new Event('change', { bubbles: true }));
				return 'ok';
			}
		}
		return 'missing';
	}
	const type = (el.getAttribute('type') || '').toLowerCase();
	if (type === 'radio' && el.name) {
		const group = document.querySelectorAll('input[type="radio"][name="' + CSS.escape(el.name) + '"]');
		for (const r of group) {
			let t = '';
			if (r.id) {
				const l = document.querySelector('label[for="' + CSS.escape(r.id) + '"]');
				if (l) t = (l.innerText || '').trim();
			}
			if (!t) {
				const anc = r.closest('label');
				t = anc ? (anc.innerText || '').trim() : (r.value || '');
			}
			if (t === want) { r.click(); return 'ok'; }
		}
		return 'missing';
	}
	let list = null;
	const owns = el.getAttribute('aria-controls') || el.getAttribute('aria-owns');
	if (owns) list = document.getElementById(owns.split(/\s+/)[0]);
	if (!list) {
		const root = el.closest('[class*="select"], [class*="combobox"], [class*="autocomplete"]');
		if (root) {
			const found = root.querySelectorAll('[role="listbox"]');
			if (found.length === 1) list = found[0];
			else if (found.length > 1) return 'ambiguous';
		}
	}
	if (!list) return 'ambiguous';
	for (const o of list.querySelectorAll('[role="option"]')) {
		if ((o.innerText || '').trim() === want) { o.click(); return 'ok'; }
	}
	return 'missing';
})()`

func (a *CDPAutomator) ClickOption(ctx context.Context, ref ElementRef, text string) error {
	var outcome string
	js := fmt.Sprintf(clickOptionJS, jsStr(ref.Selector), jsStr(text))
	if err := a.eval(ctx, js, &outcome); err != nil {
		return err
	}
	switch outcome {
	case "ok":
		return nil
	case "ambiguous":
		return fmt.Errorf("option %q for %s: %w", text, ref.Selector, schemas.ErrTargetAmbiguous)
	default:
		return fmt.Errorf("option %q for %s: %w", text, ref.Selector, schemas.ErrOptionNoMatch)
	}
}

func (a *CDPAutomator) Click(ctx context.Context, ref ElementRef) error {
	return a.run(ctx, chromedp.Click(ref.Selector, chromedp.ByQuery))
}

func (a *CDPAutomator) Type(ctx context.Context, ref ElementRef, text string) error {
	return a.run(ctx, chromedp.SendKeys(ref.Selector, text, chromedp.ByQuery))
}

func (a *CDPAutomator) SetValue(ctx context.Context, ref ElementRef, value string) error {
	return a.run(ctx,
		chromedp.SetValue(ref.Selector, value, chromedp.ByQuery),
		// Frameworks track state through input events, not the value property.
		chromedp.Evaluate(fmt.Sprintf(`(() => {
			const el = document.querySelector(%s);
			if (el) el.dispatchEvent(new Event('input', { bubbles: true }));
		})()`, jsStr(ref.Selector)), nil),
	)
}

func (a *CDPAutomator) SetFiles(ctx context.Context, ref ElementRef, paths []string) error {
	return a.run(ctx, chromedp.SetUploadFiles(ref.Selector, paths, chromedp.ByQuery))
}

func (a *CDPAutomator) ClearValue(ctx context.Context, ref ElementRef) error {
	return a.SetValue(ctx, ref, "")
}

func (a *CDPAutomator) PressKey(ctx context.Context, key string) error {
	seq, ok := keySequences[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	return a.run(ctx, chromedp.KeyEvent(seq))
}

var keySequences = map[string]string{
	"Escape":    kb.Escape,
	"Tab":       kb.Tab,
	"ArrowDown": kb.ArrowDown,
	"ArrowUp":   kb.ArrowUp,
	"Backspace": kb.Backspace,
}

func (a *CDPAutomator) ScrollIntoView(ctx context.Context, ref ElementRef) error {
	return a.run(ctx, chromedp.ScrollIntoView(ref.Selector, chromedp.ByQuery))
}

func (a *CDPAutomator) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := a.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		shot, err := page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			Do(ctx)
		if err != nil {
			return err
		}
		buf = shot
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (a *CDPAutomator) WaitFor(ctx context.Context, predicate func(context.Context) (bool, error), timeout, interval time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var lastErr error
	for {
		ok, err := predicate(ctx)
		if err != nil {
			// Ambiguity is a hard stop; other evaluation errors are retried,
			// but one that persists to the deadline is surfaced so the caller
			// does not mistake a broken predicate for a slow page.
			if errors.Is(err, schemas.ErrTargetAmbiguous) {
				return false, err
			}
			lastErr = err
		} else {
			lastErr = nil
			if ok {
				return true, nil
			}
		}
		if time.Now().After(deadline) {
			return false, lastErr
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}
