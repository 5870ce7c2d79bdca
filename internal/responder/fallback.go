package responder

import (
	"context"
	"errors"
	"fmt"
)

// FallbackResponder attempts a primary responder first and falls back on
// error. Context cancellation and deadline expiry are never retried against
// the fallback: the turn's generation budget is already spent.
type FallbackResponder struct {
	primary  Responder
	fallback Responder
}

func NewFallbackResponder(primary, fallback Responder) *FallbackResponder {
	return &FallbackResponder{
		primary:  primary,
		fallback: fallback,
	}
}

func (r *FallbackResponder) Complete(ctx context.Context, req Request) (string, error) {
	if r == nil || r.primary == nil {
		if r != nil && r.fallback != nil {
			return r.fallback.Complete(ctx, req)
		}
		return "", errors.New("fallback responder misconfigured")
	}

	text, err := r.primary.Complete(ctx, req)
	if err == nil {
		return text, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	if r.fallback == nil {
		return "", err
	}

	text, fallbackErr := r.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		return "", fmt.Errorf("primary responder error: %w; fallback responder error: %v", err, fallbackErr)
	}
	return text, nil
}
