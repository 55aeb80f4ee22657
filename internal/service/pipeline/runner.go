// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/service/pipeline"

// runStep executes fn once per job. A recorded output is returned as is;
// otherwise fn runs and its output is recorded before runStep returns.
// Failed steps record nothing.
func runStep[I, O any](
	ctx context.Context,
	p *TranscriptPipeline,
	jobID string,
	step string,
	in I,
	fn func(context.Context, I) (O, error),
) (O, error) {
	var zero O

	ctx = logging.AppendCtx(ctx, slog.String(logging.StepKey, step))
	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline."+step)
	defer span.End()

	var recorded O
	found, err := p.checkpoints.Load(ctx, jobID, step, &recorded)
	if err != nil {
		slog.ErrorContext(ctx, "error loading step checkpoint", logging.ErrKey, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkpoint load failed")
		return zero, err
	}
	if found {
		slog.DebugContext(ctx, "step already completed, reusing recorded output")
		span.SetAttributes(attribute.Bool("pipeline.checkpoint.hit", true))
		p.metrics.CheckpointHit(step)
		return recorded, nil
	}

	start := time.Now()
	out, err := fn(ctx, in)
	if err != nil {
		p.metrics.ObserveStep(step, "error", time.Since(start))
		slog.ErrorContext(ctx, "step failed", logging.ErrKey, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}

	if err := p.checkpoints.Save(ctx, jobID, step, out); err != nil {
		p.metrics.ObserveStep(step, "error", time.Since(start))
		slog.ErrorContext(ctx, "error saving step checkpoint", logging.ErrKey, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkpoint save failed")
		return zero, err
	}

	duration := time.Since(start)
	p.metrics.ObserveStep(step, "success", duration)
	slog.InfoContext(ctx, "step completed", "duration", duration.String())
	span.SetStatus(codes.Ok, "")
	return out, nil
}
