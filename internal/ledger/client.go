package ledger

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/tahsilat-gateway/internal/config"
)

// Client is the contract the rest of the gateway depends on. Implementations
// never panic and never return Go errors; failures are reported in Result.
type Client interface {
	List(ctx context.Context, p ListParams) Result[*ListPayload]
	Detail(ctx context.Context, remoteID int64) Result[*Detail]
	Document(ctx context.Context, remoteID int64) Result[*Document]
}

const (
	apiPrefix = "/api/services/app/Tahsilat/"

	pathList     = "TahsilatListeleEDevlet"
	pathDetail   = "VTahsilatDetayGetirEDevlet"
	pathDocument = "TahsilatBelgeGetirEDevlet"

	// documents are base64 PDFs and can be large
	maxResponseBytes = 32 << 20
)

// New returns the configured ledger client (mock or live) wrapped with
// metrics and tracing.
func New(cfg config.LedgerConfig) Client {
	if cfg.UseMock {
		return Instrument(NewMock(), "mock")
	}
	return Instrument(NewHTTPClient(cfg), "live")
}

// HTTPClient calls the live ledger API. Extra headers and cookies come from
// configuration; the client holds no per-request state and is safe for
// concurrent use.
type HTTPClient struct {
	baseURL string
	headers map[string]string
	cookies []*http.Cookie
	hc      *http.Client
}

// NewHTTPClient builds a live client from cfg.
func NewHTTPClient(cfg config.LedgerConfig) *HTTPClient {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via LEDGER_INSECURE_SKIP_VERIFY
	}

	cookies := make([]*http.Cookie, 0, len(cfg.Cookies))
	for name, value := range cfg.Cookies {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}

	return &HTTPClient{
		baseURL: cfg.BaseURL,
		headers: cfg.Headers,
		cookies: cookies,
		hc:      &http.Client{Timeout: cfg.Timeout, Transport: tr},
	}
}

// List searches the ledger by one identity number.
func (c *HTTPClient) List(ctx context.Context, p ListParams) Result[*ListPayload] {
	q := url.Values{}
	q.Set(string(p.Kind), p.Value)
	if p.Start != nil {
		q.Set("BaslangicTarihi", p.Start.Format(wireLayout))
	}
	if p.End != nil {
		q.Set("BitisTarihi", p.End.Format(wireLayout))
	}
	q.Set("SadeceOdenmemisKayitlarMi", strconv.FormatBool(p.UnpaidOnly))

	res := call[ListPayload](ctx, c, pathList, q)
	if res.OK && res.Payload.Items == nil {
		res.Payload.Items = []Item{}
	}
	return res
}

// Detail fetches one collection with installments and payment history.
func (c *HTTPClient) Detail(ctx context.Context, remoteID int64) Result[*Detail] {
	q := url.Values{}
	q.Set("tahsilatId", strconv.FormatInt(remoteID, 10))
	return call[Detail](ctx, c, pathDetail, q)
}

// Document fetches the printable statement for one collection.
func (c *HTTPClient) Document(ctx context.Context, remoteID int64) Result[*Document] {
	q := url.Values{}
	q.Set("tahsilatId", strconv.FormatInt(remoteID, 10))
	return call[Document](ctx, c, pathDocument, q)
}

// call POSTs to path with query q and unwraps the envelope into a *P.
// Both protocol and envelope failures are checked, in that order.
func call[P any](ctx context.Context, c *HTTPClient, path string, q url.Values) (res Result[*P]) {
	lg := zerolog.Ctx(ctx).With().Str("component", "ledger").Str("endpoint", path).Logger()

	defer func() {
		if r := recover(); r != nil {
			lg.Error().Interface("panic", r).Msg("ledger call panicked")
			res = failure[*P](unexpectedError(r))
		}
	}()

	u := c.baseURL + apiPrefix + path
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, http.NoBody)
	if err != nil {
		return failure[*P](unexpectedError(err))
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		e := classify(err)
		lg.Warn().Err(err).Str("kind", string(e.Kind)).Dur("latency", time.Since(start)).Msg("ledger request failed")
		return failure[*P](e)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		e := classify(err)
		lg.Warn().Err(err).Str("kind", string(e.Kind)).Msg("ledger body read failed")
		return failure[*P](e)
	}
	lg.Debug().Int("status", resp.StatusCode).Int("bytes", len(body)).Dur("latency", time.Since(start)).Msg("ledger response")

	if !isSuccessStatus(resp.StatusCode) {
		return failure[*P](statusError(resp.StatusCode, body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return failure[*P](decodeError(err))
	}
	if !env.Success {
		msg := ""
		if env.Error != nil {
			msg = env.Error.Message
		}
		lg.Warn().Str("remote_error", msg).Bool("unauthorized", env.UnAuthorizedRequest).Msg("ledger rejected request")
		return failure[*P](envelopeError(msg))
	}

	out := new(P)
	if len(env.Result) > 0 && string(env.Result) != "null" {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return failure[*P](decodeError(err))
		}
	}
	return success(out)
}

// classify maps a transport error to timeout, connection or unexpected.
func classify(err error) *Error {
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return timeoutError()
	case errors.As(err, &ne) && ne.Timeout():
		return timeoutError()
	case errors.Is(err, context.Canceled):
		return unexpectedError(err)
	default:
		return connectionError()
	}
}
