package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/tbourn/tahsilat-gateway/internal/ledger"
)

var cacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ledger_cache_lookups_total",
		Help: "Ledger cache lookups by operation and result (hit/miss/error).",
	},
	[]string{"operation", "result"},
)

func init() {
	prometheus.MustRegister(cacheLookups)
}

type skipReadKey struct{}

// SkipRead marks ctx so cached reads are bypassed. Fresh results are still
// written back.
func SkipRead(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipReadKey{}, true)
}

func skipRead(ctx context.Context) bool {
	v, _ := ctx.Value(skipReadKey{}).(bool)
	return v
}

// Ledger caches successful Detail and Document results. List always goes to
// the remote side: every list call is an audited query whose items are
// mirrored locally.
type Ledger struct {
	next  ledger.Client
	store Store
	ttl   time.Duration
}

// NewLedger decorates next with store.
func NewLedger(next ledger.Client, store Store, ttl time.Duration) *Ledger {
	return &Ledger{next: next, store: store, ttl: ttl}
}

func (c *Ledger) List(ctx context.Context, p ledger.ListParams) ledger.Result[*ledger.ListPayload] {
	return c.next.List(ctx, p)
}

func (c *Ledger) Detail(ctx context.Context, remoteID int64) ledger.Result[*ledger.Detail] {
	return cached(ctx, c, "detail", remoteID, c.next.Detail)
}

func (c *Ledger) Document(ctx context.Context, remoteID int64) ledger.Result[*ledger.Document] {
	return cached(ctx, c, "document", remoteID, c.next.Document)
}

func cached[P any](
	ctx context.Context,
	c *Ledger,
	op string,
	remoteID int64,
	fetch func(context.Context, int64) ledger.Result[*P],
) ledger.Result[*P] {
	lg := zerolog.Ctx(ctx)
	key := "ledger:" + op + ":" + strconv.FormatInt(remoteID, 10)

	if !skipRead(ctx) {
		b, ok, err := c.store.Get(ctx, key)
		switch {
		case err != nil:
			cacheLookups.WithLabelValues(op, "error").Inc()
			lg.Warn().Err(err).Str("key", key).Msg("cache get failed")
		case ok:
			v := new(P)
			if err := json.Unmarshal(b, v); err == nil {
				cacheLookups.WithLabelValues(op, "hit").Inc()
				return ledger.Result[*P]{OK: true, Payload: v}
			}
			_ = c.store.Delete(ctx, key)
		}
		cacheLookups.WithLabelValues(op, "miss").Inc()
	}

	res := fetch(ctx, remoteID)
	if !res.OK || res.Payload == nil {
		return res
	}
	if b, err := json.Marshal(res.Payload); err == nil {
		if err := c.store.Set(ctx, key, b, c.ttl); err != nil {
			lg.Warn().Err(err).Str("key", key).Msg("cache set failed")
		}
	}
	return res
}
