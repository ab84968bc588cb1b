package observer

import (
	"context"
	"encoding/json"
	"time"

	skiff "github.com/avitkov/skiff"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedExecutor wraps a skiff.ToolExecutor with OTEL instrumentation.
type ObservedExecutor struct {
	inner skiff.ToolExecutor
	inst  *Instruments
}

// WrapExecutor returns an instrumented tool executor.
func WrapExecutor(inner skiff.ToolExecutor, inst *Instruments) *ObservedExecutor {
	return &ObservedExecutor{inner: inner, inst: inst}
}

func (o *ObservedExecutor) Definitions() []skiff.ToolDefinition {
	return o.inner.Definitions()
}

func (o *ObservedExecutor) Execute(ctx context.Context, name string, args json.RawMessage) (skiff.ToolResult, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		AttrToolName.String(name),
	))
	defer span.End()
	start := time.Now()

	result, err := o.inner.Execute(ctx, name, args)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if result.Error != "" {
		status = "tool_error"
	}
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		AttrToolStatus.String(status),
		AttrToolResultLength.Int(len(result.Content)),
	)

	o.inst.ToolExecutions.Add(ctx, 1, metric.WithAttributes(
		AttrToolName.String(name),
		attribute.String("status", status),
	))
	o.inst.ToolDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrToolName.String(name),
	))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("tool executed"))
	rec.AddAttributes(
		otellog.String("tool.name", name),
		otellog.String("tool.status", status),
		otellog.Int("tool.result_length", len(result.Content)),
		otellog.Float64("tool.duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return result, err
}

var _ skiff.ToolExecutor = (*ObservedExecutor)(nil)
