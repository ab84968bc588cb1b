package observer

import (
	"context"
	"time"

	skiff "github.com/avitkov/skiff"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedProvider wraps a skiff.Provider with OTEL instrumentation.
// The span covers the whole agentic loop; events flowing through are
// counted on the way past.
type ObservedProvider struct {
	inner skiff.Provider
	inst  *Instruments
}

// WrapProvider returns an instrumented provider.
func WrapProvider(inner skiff.Provider, inst *Instruments) *ObservedProvider {
	return &ObservedProvider{inner: inner, inst: inst}
}

func (o *ObservedProvider) Name() string { return o.inner.Name() }

// StreamTurn forwards the inner provider's stream while counting events.
// The inner provider owns proxy and closes it after its terminal event;
// this wrapper owns out the same way, so the engine sees one unchanged
// stream. Terminal status comes from the terminal event, not a return
// value.
func (o *ObservedProvider) StreamTurn(ctx context.Context, req skiff.TurnRequest, out chan<- skiff.Event) {
	defer close(out)

	ctx, span := o.inst.Tracer.Start(ctx, "chat.turn", trace.WithAttributes(
		AttrProvider.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	// Proxy channel so terminal state and token counts can be observed
	// without the inner provider knowing.
	proxy := make(chan skiff.Event)
	go o.inner.StreamTurn(ctx, req, proxy)

	var tokens, toolCalls int64
	status := "ok"
	var errMessage string

	for ev := range proxy {
		switch ev.Type {
		case skiff.EventToken:
			tokens++
		case skiff.EventToolStart:
			toolCalls++
		case skiff.EventError:
			status = "error"
			errMessage = ev.Message
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			// Consumer gone; drain the inner stream so its goroutine can
			// finish, then record the cancellation.
			for range proxy {
			}
			status = "error"
			errMessage = ctx.Err().Error()
		}
	}

	durationMs := float64(time.Since(start).Milliseconds())
	if status == "error" {
		span.SetStatus(codes.Error, errMessage)
	}

	span.SetAttributes(
		AttrTurnStatus.String(status),
		AttrTurnTokens.Int64(tokens),
		AttrTurnTools.Int64(toolCalls),
	)

	o.inst.Turns.Add(ctx, 1, metric.WithAttributes(
		AttrProvider.String(o.inner.Name()),
		attribute.String("status", status),
	))
	o.inst.TokenEvents.Add(ctx, tokens, metric.WithAttributes(
		AttrProvider.String(o.inner.Name()),
	))
	o.inst.TurnDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrProvider.String(o.inner.Name()),
	))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("turn completed"))
	rec.AddAttributes(
		otellog.String("llm.provider", o.inner.Name()),
		otellog.String("chat.turn.status", status),
		otellog.Int64("chat.turn.token_events", tokens),
		otellog.Int64("chat.turn.tool_calls", toolCalls),
		otellog.Float64("duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)
}

var _ skiff.Provider = (*ObservedProvider)(nil)
