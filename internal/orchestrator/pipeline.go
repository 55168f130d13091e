package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/nuka-cs/internal/analysis"
	"github.com/nidhogg/nuka-cs/internal/metrics"
)

// Orchestrator fans a request out to the active analyzers.
type Orchestrator struct {
	registry *Registry
	timeout  time.Duration
	logger   *zap.Logger
}

// New creates an orchestrator. timeout <= 0 uses DefaultTimeout.
func New(registry *Registry, timeout time.Duration, logger *zap.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Orchestrator{registry: registry, timeout: timeout, logger: logger}
}

// Registry returns the analyzer registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Timeout returns the per-analyzer call timeout.
func (o *Orchestrator) Timeout() time.Duration { return o.timeout }

// RunPipeline validates req and runs every active analyzer concurrently.
// The returned Signals always hold one entry per active analyzer; only a
// *analysis.ValidationError is returned as an error.
func (o *Orchestrator) RunPipeline(ctx context.Context, req analysis.Request) (analysis.Signals, error) {
	if err := analysis.Validate(req); err != nil {
		metrics.PipelineRunsTotal.WithLabelValues(ModeParallel, "invalid").Inc()
		return nil, err
	}
	req = req.Normalize(time.Now())
	start := time.Now()

	active := o.registry.Active()
	signals := make(analysis.Signals, len(active))
	for res := range o.dispatch(ctx, active, req) {
		signals[res.Agent] = res
	}

	failed := 0
	for _, res := range signals {
		if !res.Success {
			failed++
		}
	}
	status := "ok"
	if failed > 0 {
		status = "degraded"
	}
	elapsed := time.Since(start)
	metrics.PipelineRunsTotal.WithLabelValues(ModeParallel, status).Inc()
	metrics.PipelineDuration.WithLabelValues(ModeParallel).Observe(elapsed.Seconds())

	o.logger.Info("pipeline completed",
		zap.String("request", req.ID),
		zap.String("user", req.UserID),
		zap.Int("analyzers", len(active)),
		zap.Int("failed", failed),
		zap.Duration("latency", elapsed))
	return signals, nil
}

// RunOne runs a single registered analyzer.
func (o *Orchestrator) RunOne(ctx context.Context, name string, req analysis.Request) (*analysis.Result, error) {
	a, active, err := o.registry.Get(name)
	if err != nil {
		return nil, err
	}
	req = req.Normalize(time.Now())
	if !active {
		return &analysis.Result{Agent: name, Error: fmt.Sprintf("%s: %v", name, ErrAnalyzerInactive)}, nil
	}
	start := time.Now()
	res := o.invoke(ctx, Entry{Name: name, Analyzer: a}, req)
	metrics.PipelineRunsTotal.WithLabelValues(ModeSingle, statusOf(res)).Inc()
	metrics.PipelineDuration.WithLabelValues(ModeSingle).Observe(time.Since(start).Seconds())
	return res, nil
}

// dispatch runs each entry in its own goroutine and closes the returned
// channel once all have reported.
func (o *Orchestrator) dispatch(ctx context.Context, entries []Entry, req analysis.Request) <-chan *analysis.Result {
	results := make(chan *analysis.Result, len(entries))
	var wg sync.WaitGroup

	for _, e := range entries {
		wg.Add(1)
		go func(e Entry) {
			defer wg.Done()
			results <- o.invoke(ctx, e, req.Clone())
		}(e)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

type callOutcome struct {
	payload any
	err     error
}

// invoke runs one analyzer under the per-call timeout and turns every
// failure mode into a Result.
func (o *Orchestrator) invoke(ctx context.Context, e Entry, req analysis.Request) *analysis.Result {
	start := time.Now()
	res := &analysis.Result{Agent: e.Name}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan callOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- callOutcome{err: fmt.Errorf("%w: %v", analysis.ErrAnalyzerPanic, p)}
			}
		}()
		if !e.Analyzer.Validate(req) {
			done <- callOutcome{err: analysis.ErrInvalidInput}
			return
		}
		payload, err := e.Analyzer.Analyze(callCtx, req)
		done <- callOutcome{payload: payload, err: err}
	}()

	var err error
	select {
	case out := <-done:
		res.Payload, err = out.payload, out.err
	case <-callCtx.Done():
		err = fmt.Errorf("%w after %s: %v", analysis.ErrAnalyzerTimeout, o.timeout, callCtx.Err())
	}
	res.Latency = time.Since(start)
	if err != nil {
		res.Payload = nil
		res.Error = err.Error()
		o.logger.Warn("analyzer failed",
			zap.String("analyzer", e.Name),
			zap.String("request", req.ID),
			zap.Duration("latency", res.Latency),
			zap.Error(err))
	} else {
		res.Success = true
	}

	o.registry.record(res)
	metrics.AnalyzerCallsTotal.WithLabelValues(e.Name, outcomeLabel(err)).Inc()
	metrics.AnalyzerLatency.WithLabelValues(e.Name).Observe(res.Latency.Seconds())
	return res
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, analysis.ErrAnalyzerTimeout):
		return "timeout"
	case errors.Is(err, analysis.ErrAnalyzerPanic):
		return "panic"
	case errors.Is(err, analysis.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}

func statusOf(res *analysis.Result) string {
	if res.Success {
		return "ok"
	}
	return "failed"
}
