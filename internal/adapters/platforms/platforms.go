// Package platforms defines the contract for fetching raw statistics from the
// external coding platforms. Adapters are black boxes: they either return an
// unvalidated payload or fail.
package platforms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/codesync/internal/domain/normalize"
	"github.com/okian/codesync/internal/domain/types"
)

// Failure reasons reported on FetchResult.
const (
	ReasonOK        = ""
	ReasonTimeout   = "timeout"
	ReasonStatus    = "bad_status"
	ReasonPayload   = "bad_payload"
	ReasonTransport = "transport"
	ReasonNoAdapter = "no_adapter"
)

// Adapter fetches the public profile of handle on one platform.
type Adapter interface {
	Fetch(ctx context.Context, handle string) (normalize.Raw, error)
}

// AdapterFunc lets a plain function act as an Adapter.
type AdapterFunc func(ctx context.Context, handle string) (normalize.Raw, error)

// Fetch calls f.
func (f AdapterFunc) Fetch(ctx context.Context, handle string) (normalize.Raw, error) {
	return f(ctx, handle)
}

// FetchResult is the outcome of one adapter call.
type FetchResult struct {
	Platform types.Platform
	Handle   string
	Raw      normalize.Raw
	Err      error
	Reason   string
	Latency  time.Duration
}

// OK reports whether the call produced a usable payload.
func (r FetchResult) OK() bool { return r.Err == nil && r.Raw != nil }

// Registry maps platforms to adapters and applies a per-call timeout.
type Registry struct {
	adapters map[types.Platform]Adapter
	timeout  time.Duration
}

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithTimeout bounds every adapter call.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithAdapter registers a for p.
func WithAdapter(p types.Platform, a Adapter) Option {
	return func(r *Registry) {
		if a != nil && p.Valid() {
			r.adapters[p] = a
		}
	}
}

const defaultTimeout = 15 * time.Second

// NewRegistry creates a registry with the given adapters.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		adapters: make(map[types.Platform]Adapter, len(types.AllPlatforms)),
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces the adapter for p.
func (r *Registry) Register(p types.Platform, a Adapter) {
	WithAdapter(p, a)(r)
}

// Fetch calls the adapter for p and classifies the outcome. It never panics
// on a misbehaving adapter and never returns a nil Raw with a nil Err.
func (r *Registry) Fetch(ctx context.Context, p types.Platform, handle string) (res FetchResult) {
	res = FetchResult{Platform: p, Handle: handle}
	a, ok := r.adapters[p]
	if !ok {
		res.Err = fmt.Errorf("%w: %s", ErrNoAdapter, p)
		res.Reason = ReasonNoAdapter
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		res.Latency = time.Since(start)
		if rec := recover(); rec != nil {
			res.Raw = nil
			res.Err = fmt.Errorf("adapter %s panicked: %v", p, rec)
			res.Reason = ReasonTransport
		}
	}()

	raw, err := a.Fetch(ctx, handle)
	switch {
	case err != nil:
		res.Err = err
		res.Reason = classify(err)
	case raw == nil:
		res.Err = ErrBadPayload
		res.Reason = ReasonPayload
	default:
		res.Raw = raw
	}
	return res
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrBadStatus):
		return ReasonStatus
	case errors.Is(err, ErrBadPayload):
		return ReasonPayload
	default:
		return ReasonTransport
	}
}
