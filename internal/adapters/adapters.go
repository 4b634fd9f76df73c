// Package adapters implements the Source Adapters (C2): uniform async
// wrappers over the external services the resolution pipeline draws
// candidates from. Every adapter returns a structured AdapterResult and
// never panics into the caller; persistent failures are reported as one
// of model.ErrorKind's adapter_* classes.
package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/resolveco/resolveco/internal/model"
)

// Query bundles everything an adapter needs to look up one company. Most
// adapters only read a subset of the fields.
type Query struct {
	Name     string
	City     string
	State    string
	Phone    string
	Address  string
	Category string
	Context  string

	// CandidateURL and CandidateText are populated for adapters (page_fetch,
	// text_extract, email_verify) that operate on a specific candidate
	// rather than searching from scratch.
	CandidateURL  string
	CandidateHTML []byte
	CandidateText string
	Email         string
}

// Result is a single adapter's structured payload before it becomes a
// model.Candidate. Adapters fill only the fields relevant to their kind.
type Result struct {
	Candidates []model.Candidate
	Raw        map[string]any
}

// AdapterResult is the sum-type wrapper every adapter returns: either a
// populated Result, or a StructuredError — never both, never an exception.
type AdapterResult struct {
	Result  Result
	Cost    float64
	Latency time.Duration
	Err     *model.StructuredError
}

// Adapter is the common interface every source adapter implements.
type Adapter interface {
	Name() string
	Call(ctx context.Context, q Query) AdapterResult
}

// RetryPolicy performs at most one internal retry on a transient failure,
// waiting at least 250ms before retrying, per spec §4.2.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, BaseBackoff: 250 * time.Millisecond}
}

// run calls fn and, while the error it returns is transient per
// isTransient, retries it up to MaxAttempts attempts in all, waiting
// (attempt number × BaseBackoff) before each retry.
func (p RetryPolicy) run(ctx context.Context, fn func(ctx context.Context) (Result, error)) (Result, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := p.BaseBackoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !isTransient(err) || i == attempts-1 {
			return Result{}, err
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(time.Duration(i+1) * backoff):
		}
	}
	return Result{}, lastErr
}

// RateLimited wraps an Adapter with a per-adapter token bucket. A call that
// finds no token available fails fast with an adapter_quota error rather
// than blocking, matching spec §5's "adapters respond to quota exhaustion
// with a quota error that the router treats as a hard skip ... for a
// cooldown window".
type RateLimited struct {
	Inner   Adapter
	Limiter *rate.Limiter
}

// NewTokenBucket builds a limiter allowing ratePerSecond calls/sec with a
// burst of burst, the shape grounded on blackcoderx-falcon's use of
// golang.org/x/time/rate for outbound API throttling.
func NewTokenBucket(ratePerSecond float64, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(ratePerSecond), burst)
}

func (r *RateLimited) Name() string { return r.Inner.Name() }

func (r *RateLimited) Call(ctx context.Context, q Query) AdapterResult {
	if r.Limiter != nil && !r.Limiter.Allow() {
		return AdapterResult{Err: &model.StructuredError{
			Kind:   model.ErrAdapterQuota,
			Detail: fmt.Sprintf("%s: rate limit exhausted", r.Inner.Name()),
			Stage:  r.Inner.Name(),
		}}
	}
	start := time.Now()
	out := r.Inner.Call(ctx, q)
	out.Latency = time.Since(start)
	return out
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if ctxErr := context.DeadlineExceeded; err == ctxErr {
		return false
	}
	var se *model.StructuredError
	if as(err, &se) {
		switch se.Kind {
		case model.ErrAdapterTimeout, model.ErrAdapterHTTPError:
			return true
		default:
			return false
		}
	}
	return true
}

// as is a tiny errors.As stand-in: it reports whether err is itself a
// *model.StructuredError and, if so, stores it in target. It is a direct
// type assertion, so a StructuredError wrapped inside another error is not
// found.
func as(err error, target **model.StructuredError) bool {
	if se, ok := err.(*model.StructuredError); ok {
		*target = se
		return true
	}
	return false
}

func logCall(ctx context.Context, name string, res AdapterResult) {
	ev := log.Debug().Str("stage", name).Dur("latency", res.Latency).Float64("cost", res.Cost)
	if res.Err != nil {
		ev = log.Warn().Str("stage", name).Str("error_kind", string(res.Err.Kind))
	}
	ev.Msg("adapter call completed")
	_ = ctx
}
