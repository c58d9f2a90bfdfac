// Package mocks provides shared test doubles: a scriptable in-memory page
// implementing browser.Automator and a testify mock for the reasoning
// service.
package mocks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/antonkk/formpilot/api/schemas"
	"github.com/antonkk/formpilot/internal/browser"
)

// Control describes one scripted element on a FakePage.
type Control struct {
	ID          string // doubles as the selector
	Tag         string
	InputType   string
	Role        string
	Name        string
	Label       string // explicit associated label text
	AriaLabel   string
	Placeholder string
	Preceding   string // nearest preceding text block
	Required    bool
	Hidden      bool
	X, Y        float64

	// Options is the static option vocabulary (selects, radio groups).
	Options []string
	// Multiple mimics select[multiple]: clicked options accumulate in
	// Selected and Value becomes their joined text.
	Multiple bool
	// OptionsErr makes every ListOptions call fail with this error.
	OptionsErr error
	// AsyncOptions appear only after the control has been typed into, after
	// OptionPolls further ListOptions calls. Simulates remote lookups.
	AsyncOptions []string
	OptionPolls  int
	// Ambiguous makes ListOptions and ClickOption fail with
	// ErrTargetAmbiguous, as when listbox ownership cannot be resolved.
	Ambiguous bool

	// RejectValue triggers a validation message when it ends up committed.
	RejectValue string
	ValidityMsg string
	// DropTyped simulates widgets that swallow typed input unless an option
	// is clicked: Type appends nothing to the committed value.
	DropTyped bool

	// Mutable state.
	Value    string
	Selected []string
	Checked  bool
	Files    []string
	typed    bool
	polls    int
}

// FakePage is a scriptable Automator. Tests construct it with a control
// inventory and inspect the committed state afterwards. It is intentionally
// single-page: Navigate only records the URL.
type FakePage struct {
	mu       sync.Mutex
	url      string
	controls []*Control

	// OnEnumerate, when set, runs before each enumeration so tests can
	// mutate the page between scan passes.
	OnEnumerate func(pass int, p *FakePage)
	passes      int

	PressedKeys []string
	ClickedIDs  []string
	ScreenshotF func() []byte
}

var _ browser.Automator = (*FakePage)(nil)

// NewFakePage builds a page over the given controls.
func NewFakePage(controls ...*Control) *FakePage {
	return &FakePage{controls: controls}
}

// AddControl appends a control, used by OnEnumerate hooks to grow the form.
func (p *FakePage) AddControl(c *Control) {
	p.controls = append(p.controls, c)
}

// Control returns the control with the given ID.
func (p *FakePage) Control(id string) *Control {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.find(id)
}

// Passes reports how many enumerations have run.
func (p *FakePage) Passes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.passes
}

func (p *FakePage) find(id string) *Control {
	for _, c := range p.controls {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (p *FakePage) ref(c *Control) browser.ElementRef {
	return browser.ElementRef{Selector: c.ID, Tag: c.Tag, X: c.X, Y: c.Y}
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return nil
}

func (p *FakePage) Location(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *FakePage) Enumerate(ctx context.Context, scope string) ([]browser.Candidate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.passes++
	if p.OnEnumerate != nil {
		hook := p.OnEnumerate
		pass := p.passes
		p.mu.Unlock()
		hook(pass, p)
		p.mu.Lock()
	}
	var out []browser.Candidate
	for _, c := range p.controls {
		out = append(out, browser.Candidate{
			Ref:       p.ref(c),
			InputType: c.InputType,
			Role:      c.Role,
			Name:      c.Name,
			Visible:   !c.Hidden,
		})
	}
	return out, nil
}

func (p *FakePage) ReadAttribute(ctx context.Context, ref browser.ElementRef, name string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.find(ref.Selector)
	if c == nil {
		return "", false, schemas.ErrTargetAmbiguous
	}
	switch name {
	case "aria-label":
		return c.AriaLabel, c.AriaLabel != "", nil
	case "placeholder":
		return c.Placeholder, c.Placeholder != "", nil
	case "required":
		return "", c.Required, nil
	case "aria-required":
		if c.Required {
			return "true", true, nil
		}
		return "", false, nil
	case "name":
		return c.Name, c.Name != "", nil
	case "multiple":
		return "", c.Multiple, nil
	}
	return "", false, nil
}

func (p *FakePage) ReadText(ctx context.Context, ref browser.ElementRef) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c := p.find(ref.Selector); c != nil {
		return c.Label, nil
	}
	return "", nil
}

func (p *FakePage) ReadValue(ctx context.Context, ref browser.ElementRef) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.find(ref.Selector)
	if c == nil {
		return "", nil
	}
	return c.Value, nil
}

func (p *FakePage) Checked(ctx context.Context, ref browser.ElementRef) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c := p.find(ref.Selector); c != nil {
		return c.Checked, nil
	}
	return false, nil
}

func (p *FakePage) ValidityMessage(ctx context.Context, ref browser.ElementRef) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.find(ref.Selector)
	if c == nil {
		return "", nil
	}
	if c.RejectValue != "" && c.Value == c.RejectValue {
		if c.ValidityMsg != "" {
			return c.ValidityMsg, nil
		}
		return "Invalid value.", nil
	}
	return "", nil
}

func (p *FakePage) AssociatedLabel(ctx context.Context, ref browser.ElementRef) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c := p.find(ref.Selector); c != nil {
		return c.Label, nil
	}
	return "", nil
}

func (p *FakePage) PrecedingText(ctx context.Context, ref browser.ElementRef) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c := p.find(ref.Selector); c != nil {
		return c.Preceding, nil
	}
	return "", nil
}

func (p *FakePage) ListOptions(ctx context.Context, ref browser.ElementRef) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.find(ref.Selector)
	if c == nil {
		return nil, nil
	}
	if c.Ambiguous {
		return nil, schemas.ErrTargetAmbiguous
	}
	if c.OptionsErr != nil {
		return nil, c.OptionsErr
	}
	if len(c.AsyncOptions) > 0 {
		if !c.typed {
			return nil, nil
		}
		if c.polls < c.OptionPolls {
			c.polls++
			return nil, nil
		}
		return append([]string(nil), c.AsyncOptions...), nil
	}
	return append([]string(nil), c.Options...), nil
}

func (p *FakePage) ClickOption(ctx context.Context, ref browser.ElementRef, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.find(ref.Selector)
	if c == nil {
		return schemas.ErrOptionNoMatch
	}
	if c.Ambiguous {
		return schemas.ErrTargetAmbiguous
	}
	pool := c.Options
	if len(c.AsyncOptions) > 0 {
		pool = c.AsyncOptions
	}
	for _, opt := range pool {
		if opt == text {
			if c.Multiple {
				if !contains(c.Selected, text) {
					c.Selected = append(c.Selected, text)
				}
				c.Value = strings.Join(c.Selected, ", ")
				return nil
			}
			c.Value = text
			if c.InputType == "radio" || c.Role == "radio" {
				c.Checked = true
			}
			return nil
		}
	}
	return schemas.ErrOptionNoMatch
}

func (p *FakePage) Click(ctx context.Context, ref browser.ElementRef) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ClickedIDs = append(p.ClickedIDs, ref.Selector)
	c := p.find(ref.Selector)
	if c == nil {
		return schemas.ErrTargetAmbiguous
	}
	if c.InputType == "checkbox" || c.Role == "checkbox" {
		c.Checked = !c.Checked
	}
	return nil
}

func (p *FakePage) Type(ctx context.Context, ref browser.ElementRef, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.find(ref.Selector)
	if c == nil {
		return schemas.ErrTargetAmbiguous
	}
	c.typed = true
	if !c.DropTyped {
		c.Value += text
	}
	return nil
}

func (p *FakePage) SetValue(ctx context.Context, ref browser.ElementRef, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.find(ref.Selector)
	if c == nil {
		return schemas.ErrTargetAmbiguous
	}
	c.Value = value
	return nil
}

func (p *FakePage) SetFiles(ctx context.Context, ref browser.ElementRef, paths []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.find(ref.Selector)
	if c == nil {
		return schemas.ErrTargetAmbiguous
	}
	c.Files = append([]string(nil), paths...)
	if len(paths) > 0 {
		c.Value = paths[len(paths)-1]
	}
	return nil
}

func (p *FakePage) ClearValue(ctx context.Context, ref browser.ElementRef) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.find(ref.Selector)
	if c == nil {
		return schemas.ErrTargetAmbiguous
	}
	c.Value = ""
	return nil
}

func (p *FakePage) PressKey(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PressedKeys = append(p.PressedKeys, key)
	return nil
}

func (p *FakePage) ScrollIntoView(ctx context.Context, ref browser.ElementRef) error {
	return nil
}

func (p *FakePage) Screenshot(ctx context.Context) ([]byte, error) {
	if p.ScreenshotF != nil {
		return p.ScreenshotF(), nil
	}
	return []byte("png"), nil
}

func (p *FakePage) WaitFor(ctx context.Context, predicate func(context.Context) (bool, error), timeout, interval time.Duration) (bool, error) {
	// Bounded polling without real sleeps keeps tests fast. The iteration
	// count stands in for the timeout budget. Like the real automator, an
	// ambiguous target aborts immediately; other predicate errors are retried
	// and the last one is surfaced when the budget runs out.
	iterations := int(timeout / interval)
	if iterations < 1 {
		iterations = 1
	}
	var lastErr error
	for i := 0; i < iterations; i++ {
		ok, err := predicate(ctx)
		if err != nil {
			if errors.Is(err, schemas.ErrTargetAmbiguous) {
				return false, err
			}
			lastErr = err
			continue
		}
		lastErr = nil
		if ok {
			return true, nil
		}
	}
	return false, lastErr
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
