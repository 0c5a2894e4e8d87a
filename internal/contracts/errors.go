package contracts

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. Match with errors.Is.
var (
	// Input/authorization: surfaced immediately, never retried, no run recorded
	ErrContextNotFound  = errors.New("context not found")
	ErrForbiddenContext = errors.New("forbidden context")

	// Transient data errors: fatal to the current run only
	ErrDataSourceUnavailable = errors.New("data source unavailable")

	// Layer-level errors: converted to the degraded "unknown" path
	ErrInsufficientData = errors.New("insufficient data")
	ErrModelUnavailable = errors.New("model unavailable")

	ErrRunCancelled    = errors.New("run cancelled")
	ErrRunNotFound     = errors.New("run not found")
	ErrRunExists       = errors.New("run already exists")
	ErrVersionConflict = errors.New("context version conflict")
)

// InsufficientDataError names the window a layer is missing
type InsufficientDataError struct {
	Layer    LayerID
	Required Requirement
	Series   string
	Detail   string
}

func (e *InsufficientDataError) Error() string {
	if e.Series != "" {
		return fmt.Sprintf("%s: insufficient data for window %s (series %s: %s)", e.Layer, e.Required, e.Series, e.Detail)
	}
	return fmt.Sprintf("%s: insufficient data for window %s (%s)", e.Layer, e.Required, e.Detail)
}

// Is makes errors.Is(err, ErrInsufficientData) true
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// DataSourceError wraps a fatal market data failure for one layer.
// A per-layer timeout is reported as a DataSourceError with Timeout set.
type DataSourceError struct {
	Layer   LayerID
	Timeout bool
	Err     error
}

func (e *DataSourceError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: data source timed out: %v", e.Layer, e.Err)
	}
	return fmt.Sprintf("%s: data source unavailable: %v", e.Layer, e.Err)
}

// Is makes errors.Is(err, ErrDataSourceUnavailable) true
func (e *DataSourceError) Is(target error) bool {
	return target == ErrDataSourceUnavailable
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}

// NewDataSourceError classifies err for a layer, marking deadline errors as timeouts
func NewDataSourceError(layer LayerID, err error) *DataSourceError {
	var dsErr *DataSourceError
	if errors.As(err, &dsErr) {
		return dsErr
	}
	return &DataSourceError{
		Layer:   layer,
		Timeout: errors.Is(err, context.DeadlineExceeded),
		Err:     err,
	}
}

// IsFatal reports whether an error must abort a run
func IsFatal(err error) bool {
	return errors.Is(err, ErrDataSourceUnavailable) ||
		errors.Is(err, ErrContextNotFound) ||
		errors.Is(err, ErrForbiddenContext) ||
		errors.Is(err, ErrRunCancelled) ||
		errors.Is(err, context.DeadlineExceeded)
}
