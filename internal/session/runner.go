package session

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/antonkk/formpilot/api/schemas"
)

// SessionFunc produces and runs one session for a URL. The runner stays
// ignorant of browsers and wiring; the caller injects whatever factory it
// wants (typically one browser per session sharing a learning store and one
// rate-limited reasoner).
type SessionFunc func(ctx context.Context, url string) (*schemas.SessionReport, error)

// Runner executes sessions for many URLs with bounded parallelism. One
// failing session does not cancel its siblings; errors are folded into
// partial reports.
type Runner struct {
	concurrency int
	run         SessionFunc
	logger      *zap.Logger
}

func NewRunner(concurrency int, run SessionFunc, logger *zap.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		concurrency: concurrency,
		run:         run,
		logger:      logger.Named("runner"),
	}
}

// RunAll processes every URL and returns the reports in input order.
func (r *Runner) RunAll(ctx context.Context, urls []string) []*schemas.SessionReport {
	reports := make([]*schemas.SessionReport, len(urls))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			report, err := r.run(gctx, url)
			if err != nil {
				r.logger.Error("Session failed to run.", zap.String("url", url), zap.Error(err))
				report = &schemas.SessionReport{
					URL:    url,
					Status: schemas.SessionPartial,
				}
			}
			mu.Lock()
			reports[i] = report
			mu.Unlock()
			// Always nil: one broken form must not cancel the rest.
			return nil
		})
	}
	_ = g.Wait()
	return reports
}
