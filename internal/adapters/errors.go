package adapters

import (
	"context"
	"errors"
	"net"

	"github.com/resolveco/resolveco/internal/model"
)

// classifyHTTPErr maps a raw transport-level error into a StructuredError,
// distinguishing timeouts from generic HTTP failures so the router can
// decide whether to retry, per spec §5.
func classifyHTTPErr(stage string, err error) *model.StructuredError {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &model.StructuredError{Kind: model.ErrAdapterTimeout, Detail: err.Error(), Stage: stage}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &model.StructuredError{Kind: model.ErrAdapterTimeout, Detail: err.Error(), Stage: stage}
	}
	return &model.StructuredError{Kind: model.ErrAdapterHTTPError, Detail: err.Error(), Stage: stage}
}

// toStructuredErr normalizes any error returned from a retry loop into a
// *model.StructuredError, preserving an already-structured error untouched.
func toStructuredErr(stage string, err error) *model.StructuredError {
	if err == nil {
		return nil
	}
	var se *model.StructuredError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &model.StructuredError{Kind: model.ErrDeadlineExceeded, Detail: err.Error(), Stage: stage}
	}
	return &model.StructuredError{Kind: model.ErrAdapterHTTPError, Detail: err.Error(), Stage: stage}
}
