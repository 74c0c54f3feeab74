package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTrackUnavailable means no tier of the ladder could be resolved.
	ErrTrackUnavailable = errors.New("track unavailable")
	// ErrQualityUnavailable means the requested tier failed and cascading is disabled.
	ErrQualityUnavailable = errors.New("quality unavailable")
	// ErrResolutionTransient covers network and entitlement faults while resolving.
	ErrResolutionTransient = errors.New("resolution failed")
	// ErrStreamTransient covers read and write faults mid-stream.
	ErrStreamTransient      = errors.New("stream interrupted")
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")
	ErrContainerConversion  = errors.New("container conversion failed")

	// ErrNoRights is returned by the gateway when a whole batch is refused.
	ErrNoRights = errors.New("no rights on media")
	// ErrSourceNotFound indicates a 403/404 from the media host.
	ErrSourceNotFound = errors.New("source not found")
	ErrCodecConfig    = errors.New("codec not configured")
	// ErrUnsupportedCipher means the gateway named a cipher the codec cannot
	// handle, or left out the key material it needs.
	ErrUnsupportedCipher = errors.New("unsupported cipher")
)

type FailureKind string

const (
	FailureNone                FailureKind = ""
	FailureTrackUnavailable    FailureKind = "track_unavailable"
	FailureQualityUnavailable  FailureKind = "quality_unavailable"
	FailureResolution          FailureKind = "resolution"
	FailureStream              FailureKind = "stream"
	FailureRetryBudget         FailureKind = "retry_budget_exhausted"
	FailureContainerConversion FailureKind = "container_conversion"
	FailureCancelled           FailureKind = "cancelled"
	FailureInternal            FailureKind = "internal"
)

// TrackError ties a failure to the track it happened on.
type TrackError struct {
	Kind    FailureKind
	TrackID string
	Err     error
}

func (e *TrackError) Error() string {
	return fmt.Sprintf("track %s: %s: %v", e.TrackID, e.Kind, e.Err)
}

func (e *TrackError) Unwrap() error { return e.Err }

func NewTrackError(trackID string, err error) *TrackError {
	return &TrackError{Kind: KindOf(err), TrackID: trackID, Err: err}
}

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) FailureKind {
	var te *TrackError
	switch {
	case err == nil:
		return FailureNone
	case errors.As(err, &te):
		return te.Kind
	case errors.Is(err, context.Canceled):
		return FailureCancelled
	case errors.Is(err, ErrRetryBudgetExhausted):
		return FailureRetryBudget
	case errors.Is(err, ErrTrackUnavailable):
		return FailureTrackUnavailable
	case errors.Is(err, ErrQualityUnavailable):
		return FailureQualityUnavailable
	case errors.Is(err, ErrContainerConversion):
		return FailureContainerConversion
	case errors.Is(err, ErrResolutionTransient):
		return FailureResolution
	case errors.Is(err, ErrStreamTransient):
		return FailureStream
	default:
		return FailureInternal
	}
}

// IsTransient reports whether err should be retried under the retry budget.
func IsTransient(err error) bool {
	if errors.Is(err, ErrRetryBudgetExhausted) {
		return false
	}
	return errors.Is(err, ErrResolutionTransient) || errors.Is(err, ErrStreamTransient)
}
