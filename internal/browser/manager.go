package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/antonkk/formpilot/internal/config"
)

// Manager owns the chromedp allocator and browser session lifecycle. One
// Manager backs one browser process; sessions hand out Automators bound to
// its page context.
type Manager struct {
	cfg           config.BrowserConfig
	logger        *zap.Logger
	allocCtx      context.Context
	cancelAlloc   context.CancelFunc
	sessionCtx    context.Context
	cancelSession context.CancelFunc
}

// NewManager launches a browser process according to cfg. Close must be
// called to reap it.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	sessionCtx, cancelSession := chromedp.NewContext(allocCtx)

	// Force the browser process to start now so failures surface here, not
	// in the middle of a session.
	if err := chromedp.Run(sessionCtx); err != nil {
		cancelSession()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Info("Browser session started.", zap.Bool("headless", cfg.Headless))
	return &Manager{
		cfg:           cfg,
		logger:        logger.Named("browser"),
		allocCtx:      allocCtx,
		cancelAlloc:   cancelAlloc,
		sessionCtx:    sessionCtx,
		cancelSession: cancelSession,
	}, nil
}

// Automator returns an Automator bound to the managed page.
func (m *Manager) Automator() Automator {
	return NewCDPAutomator(m.sessionCtx, m.logger)
}

// Close tears down the page and the browser process.
func (m *Manager) Close() {
	m.cancelSession()
	m.cancelAlloc()
	m.logger.Info("Browser session closed.")
}
