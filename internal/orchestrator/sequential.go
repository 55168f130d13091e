package orchestrator

import (
	"context"
	"fmt"
	"maps"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/nuka-cs/internal/analysis"
	"github.com/nidhogg/nuka-cs/internal/metrics"
)

// RunSequential runs the named analyzers in order. Each stage sees the
// previous stages' payloads in its hints: under the stage name, plus the
// keys exposed by payloads implementing analysis.HintProvider. The run
// stops at the first failed stage. An invalid request runs no stage and
// its *analysis.ValidationError is returned in Err.
func (o *Orchestrator) RunSequential(ctx context.Context, names []string, req analysis.Request) SequentialResult {
	if err := analysis.Validate(req); err != nil {
		metrics.PipelineRunsTotal.WithLabelValues(ModeSequential, "invalid").Inc()
		return SequentialResult{Stages: []StageResult{}, Error: err.Error(), Err: err}
	}
	start := time.Now()
	req = req.Normalize(start)
	out := SequentialResult{Success: true, Stages: make([]StageResult, 0, len(names))}

	cur := req.Clone()
	if cur.ContextHints == nil {
		cur.ContextHints = make(map[string]any)
	}

	for _, name := range names {
		res := o.stage(ctx, name, cur)
		out.Stages = append(out.Stages, StageResult{Name: name, Result: res})
		if !res.Success {
			out.Success = false
			out.FailedStage = name
			out.Error = fmt.Sprintf("pipeline failed at %s: %s", name, res.Error)
			break
		}

		next := cur.Clone()
		next.ContextHints[name] = res.Payload
		if hp, ok := res.Payload.(analysis.HintProvider); ok {
			maps.Copy(next.ContextHints, hp.Hints())
		}
		cur = next
	}

	out.Hints = cur.ContextHints
	out.Duration = time.Since(start)

	status := "ok"
	if !out.Success {
		status = "failed"
	}
	metrics.PipelineRunsTotal.WithLabelValues(ModeSequential, status).Inc()
	metrics.PipelineDuration.WithLabelValues(ModeSequential).Observe(out.Duration.Seconds())
	o.logger.Info("sequential run completed",
		zap.String("request", req.ID),
		zap.Int("stages", len(out.Stages)),
		zap.Bool("success", out.Success),
		zap.String("failed_stage", out.FailedStage),
		zap.Duration("latency", out.Duration))
	return out
}

func (o *Orchestrator) stage(ctx context.Context, name string, req analysis.Request) *analysis.Result {
	a, active, err := o.registry.Get(name)
	if err != nil {
		return &analysis.Result{Agent: name, Error: err.Error()}
	}
	if !active {
		return &analysis.Result{Agent: name, Error: fmt.Sprintf("%s: %v", name, ErrAnalyzerInactive)}
	}
	return o.invoke(ctx, Entry{Name: name, Analyzer: a}, req)
}
