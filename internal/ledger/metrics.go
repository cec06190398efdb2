package ledger

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ledgerReqs counts calls by operation, mode (live/mock) and outcome
	// ("ok" or an ErrorKind).
	ledgerReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_requests_total",
			Help: "Total number of remote ledger calls.",
		},
		[]string{"operation", "mode", "outcome"},
	)

	// ledgerLat records call duration in seconds by operation and mode.
	ledgerLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_request_duration_seconds",
			Help:    "Duration of remote ledger calls in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"operation", "mode"},
	)
)

func init() {
	prometheus.MustRegister(ledgerReqs, ledgerLat)
}

type instrumented struct {
	next Client
	mode string
}

// Instrument decorates next with Prometheus metrics and OpenTelemetry spans.
func Instrument(next Client, mode string) Client {
	return &instrumented{next: next, mode: mode}
}

func (c *instrumented) List(ctx context.Context, p ListParams) Result[*ListPayload] {
	ctx, span := c.start(ctx, "List",
		attribute.String("ledger.identity_kind", string(p.Kind)),
		attribute.Bool("ledger.unpaid_only", p.UnpaidOnly),
	)
	defer span.End()

	start := time.Now()
	res := c.next.List(ctx, p)
	c.observe(span, "list", start, res.Err)
	if res.OK && res.Payload != nil {
		span.SetAttributes(attribute.Int("ledger.items", len(res.Payload.Items)))
	}
	return res
}

func (c *instrumented) Detail(ctx context.Context, remoteID int64) Result[*Detail] {
	ctx, span := c.start(ctx, "Detail", attribute.Int64("ledger.remote_id", remoteID))
	defer span.End()

	start := time.Now()
	res := c.next.Detail(ctx, remoteID)
	c.observe(span, "detail", start, res.Err)
	return res
}

func (c *instrumented) Document(ctx context.Context, remoteID int64) Result[*Document] {
	ctx, span := c.start(ctx, "Document", attribute.Int64("ledger.remote_id", remoteID))
	defer span.End()

	start := time.Now()
	res := c.next.Document(ctx, remoteID)
	c.observe(span, "document", start, res.Err)
	return res
}

func (c *instrumented) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("ledger.mode", c.mode))
	return otel.Tracer("ledger").Start(ctx, "ledger."+name, trace.WithAttributes(attrs...))
}

func (c *instrumented) observe(span trace.Span, op string, start time.Time, e *Error) {
	outcome := "ok"
	if e != nil {
		outcome = string(e.Kind)
		span.SetStatus(codes.Error, e.Message)
		if e.Status != 0 {
			span.SetAttributes(attribute.String("http.status_code", strconv.Itoa(e.Status)))
		}
	}
	ledgerReqs.WithLabelValues(op, c.mode, outcome).Inc()
	ledgerLat.WithLabelValues(op, c.mode).Observe(time.Since(start).Seconds())
}
