package optimize

import (
	"errors"
	"fmt"
)

// Error taxonomy for the pipeline. Callers dispatch with errors.Is; every
// fallible operation wraps one of these sentinels so categories survive
// wrapping.
var (
	// ErrLoad indicates the image reference could not be fetched or read.
	ErrLoad = errors.New("image load failed")

	// ErrDecode indicates the image bytes were unrecognized or corrupt.
	ErrDecode = errors.New("image decode failed")

	// ErrEncode indicates the encoder rejected the image or parameters.
	ErrEncode = errors.New("image encode failed")

	// ErrValidation indicates an optimized result failed bounds or ratio checks.
	ErrValidation = errors.New("result validation failed")

	// ErrStorage indicates a cache read or write failure. Always absorbed:
	// logged and treated as a miss, never surfaced to callers.
	ErrStorage = errors.New("cache storage failed")

	// ErrTimeout indicates an attempt exceeded its time budget.
	ErrTimeout = errors.New("operation timed out")
)

// loadError wraps err as a load failure.
func loadError(err error) error {
	return fmt.Errorf("%w: %v", ErrLoad, err)
}

// encodeError wraps err as an encode failure.
func encodeError(err error) error {
	return fmt.Errorf("%w: %v", ErrEncode, err)
}

// validationError builds a validation failure from recorded check errors.
func validationError(errs []string) error {
	return fmt.Errorf("%w: %v", ErrValidation, errs)
}

// ErrorCategory maps an error to its taxonomy bucket for batch breakdowns.
func ErrorCategory(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrLoad):
		return "load"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrEncode):
		return "encode"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "unknown"
	}
}
