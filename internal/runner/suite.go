package runner

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunSuite runs the cases with at most Config.SuiteConcurrency in flight,
// each on its own session. Results keep request order.
func (r *Runner) RunSuite(ctx context.Context, cases []CaseRequest) SuiteResult {
	suite := SuiteResult{
		SuiteID:   r.newID(),
		Results:   make([]CaseResult, len(cases)),
		StartTime: time.Now(),
		Total:     len(cases),
	}
	r.log.Info("Suite started", zap.String("suite_id", suite.SuiteID), zap.Int("cases", len(cases)))

	var g errgroup.Group
	g.SetLimit(r.cfg.SuiteConcurrency)
	for i, c := range cases {
		g.Go(func() error {
			res := r.RunCase(ctx, c.URL, c.Steps, c.Headless)
			if c.Name != "" {
				res.Metadata[MetaName] = c.Name
			}
			suite.Results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range suite.Results {
		if res.Success {
			suite.Successful++
		} else {
			suite.Failed++
		}
	}
	suite.EndTime = time.Now()
	suite.TotalDuration = suite.EndTime.Sub(suite.StartTime)
	r.log.Info("Suite finished",
		zap.String("suite_id", suite.SuiteID),
		zap.Int("successful", suite.Successful),
		zap.Int("failed", suite.Failed),
		zap.Duration("elapsed", suite.TotalDuration))
	return suite
}
