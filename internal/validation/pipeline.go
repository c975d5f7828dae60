// Package validation decides whether a presented API key may make a request,
// keeps the key's usage counters current and writes the usage ledger.
package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rsclarke/keyward/internal/logging"
	"github.com/rsclarke/keyward/internal/metrics"
	"github.com/rsclarke/keyward/internal/models"
	"github.com/rsclarke/keyward/internal/ratelimit"
	"github.com/rsclarke/keyward/internal/store"
)

const (
	// DefaultLimit is the request budget for keys without an override.
	DefaultLimit = 100
	// DefaultWindow is the length of one rate limit window.
	DefaultWindow = 60 * time.Second
	// DefaultEndpoint is recorded when the caller does not name one.
	DefaultEndpoint = "/api/validate"
	// UnknownIP is recorded when the caller address cannot be determined.
	UnknownIP = "unknown"
)

// ErrStoreUnavailable is returned when the key store cannot be consulted.
var ErrStoreUnavailable = errors.New("key store unavailable")

// Result is the decision reached for a validation request.
type Result string

const (
	ResultValid       Result = "valid"
	ResultInvalid     Result = "invalid"
	ResultRateLimited Result = "rate_limited"
)

// Reason qualifies a non-valid result.
type Reason string

const (
	ReasonUnknownKey  Reason = "unknown_key"
	ReasonInactiveKey Reason = "inactive_key"
	ReasonRateLimited Reason = "rate_limited"
)

// KeyStore is the subset of key storage the pipeline depends on.
type KeyStore interface {
	// ResolveBySecret returns nil, nil when no key has the secret.
	ResolveBySecret(ctx context.Context, secret string) (*models.APIKey, error)
	IncrementUsage(ctx context.Context, id string, now time.Time) error
}

// Ledger receives one event per resolved validation.
type Ledger interface {
	AppendEvent(ctx context.Context, e *models.UsageEvent) error
}

// Request describes one presented key.
type Request struct {
	Secret    string
	Endpoint  string
	IP        string
	UserAgent string
}

// Outcome is what the pipeline decided.
type Outcome struct {
	Result    Result
	Reason    Reason
	KeyID     string
	Remaining int
	ResetAt   time.Time
	// Recorded reports whether a usage event was written for this request.
	Recorded bool
}

// Valid reports whether the request was admitted.
func (o *Outcome) Valid() bool {
	return o.Result == ResultValid
}

// Pipeline runs validations. Zero-valued tuning fields fall back to the
// package defaults.
type Pipeline struct {
	Keys         KeyStore
	Ledger       Ledger
	Limiter      *ratelimit.Limiter
	DefaultLimit int
	Window       time.Duration
	Logger       *zap.Logger
	Now          func() time.Time
}

// New creates a Pipeline with default quota settings.
func New(keys KeyStore, ledger Ledger, limiter *ratelimit.Limiter, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		Keys:         keys,
		Ledger:       ledger,
		Limiter:      limiter,
		DefaultLimit: DefaultLimit,
		Window:       DefaultWindow,
		Logger:       logger,
		Now:          time.Now,
	}
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return zap.NewNop()
}

func (p *Pipeline) limitFor(key *models.APIKey) int {
	if key.RateLimit != nil && *key.RateLimit > 0 {
		return *key.RateLimit
	}
	if p.DefaultLimit > 0 {
		return p.DefaultLimit
	}
	return DefaultLimit
}

func (p *Pipeline) window() time.Duration {
	if p.Window > 0 {
		return p.Window
	}
	return DefaultWindow
}

// Validate resolves the presented secret and returns the decision. Only a
// failure of the key store produces an error; ledger failures are logged
// and reported through Outcome.Recorded.
func (p *Pipeline) Validate(ctx context.Context, req Request) (*Outcome, error) {
	start := p.now()
	if req.Endpoint == "" {
		req.Endpoint = DefaultEndpoint
	}
	if req.IP == "" {
		req.IP = UnknownIP
	}
	log := p.logger()

	key, err := p.Keys.ResolveBySecret(ctx, req.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if key == nil {
		return p.finish(start, &Outcome{Result: ResultInvalid, Reason: ReasonUnknownKey}, req), nil
	}

	if !key.Active() {
		out := &Outcome{Result: ResultInvalid, Reason: ReasonInactiveKey, KeyID: key.ID}
		p.record(ctx, start, out, req, false)
		return p.finish(start, out, req), nil
	}

	// Accounting happens before throttling so throttled calls still count.
	if err := p.Keys.IncrementUsage(ctx, key.ID, start); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Debug("key deleted during validation", logging.KeyID(key.ID))
			return p.finish(start, &Outcome{Result: ResultInvalid, Reason: ReasonUnknownKey}, req), nil
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	d := p.Limiter.Check(key.ID, p.limitFor(key), p.window(), start)
	if !d.Allowed {
		out := &Outcome{
			Result:  ResultRateLimited,
			Reason:  ReasonRateLimited,
			KeyID:   key.ID,
			ResetAt: d.ResetAt,
		}
		p.record(ctx, start, out, req, false)
		return p.finish(start, out, req), nil
	}

	out := &Outcome{
		Result:    ResultValid,
		KeyID:     key.ID,
		Remaining: d.Remaining,
		ResetAt:   d.ResetAt,
	}
	p.record(ctx, start, out, req, true)
	return p.finish(start, out, req), nil
}

func (p *Pipeline) record(ctx context.Context, start time.Time, out *Outcome, req Request, success bool) {
	elapsed := p.now().Sub(start)
	event := &models.UsageEvent{
		ID:             uuid.NewString(),
		KeyID:          out.KeyID,
		Timestamp:      start,
		IP:             req.IP,
		Endpoint:       req.Endpoint,
		Success:        success,
		ResponseTimeMs: elapsed.Milliseconds(),
	}
	if req.UserAgent != "" {
		ua := req.UserAgent
		event.UserAgent = &ua
	}

	if err := p.Ledger.AppendEvent(ctx, event); err != nil {
		p.logger().Error("ledger append failed",
			logging.KeyID(out.KeyID),
			logging.Outcome(string(out.Result)),
			zap.Error(err))
		metrics.LedgerAppendFailed()
		return
	}
	out.Recorded = true
}

func (p *Pipeline) finish(start time.Time, out *Outcome, req Request) *Outcome {
	metrics.ObserveValidation(string(out.Result), p.now().Sub(start))

	fields := []zap.Field{
		logging.Outcome(string(out.Result)),
		logging.Endpoint(req.Endpoint),
		logging.RemoteIP(req.IP),
	}
	if out.KeyID != "" {
		fields = append(fields, logging.KeyID(out.KeyID))
	}
	if out.Reason != "" {
		fields = append(fields, logging.Reason(string(out.Reason)))
	}
	if out.Result == ResultValid {
		p.logger().Debug("key validated", fields...)
	} else {
		p.logger().Info("key rejected", fields...)
	}
	return out
}
