package nowpayments

import (
	"errors"
	"fmt"
)

var (
	ErrMissingSignature = errors.New("missing notification signature")
	ErrInvalidSignature = errors.New("invalid notification signature")
)

// IsAuthenticity reports whether err means the notification could not be trusted
func IsAuthenticity(err error) bool {
	return errors.Is(err, ErrMissingSignature) || errors.Is(err, ErrInvalidSignature)
}

// ProviderError is returned for any failed call to the provider API
type ProviderError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Timeout    bool
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("nowpayments %s: timed out", e.Op)
	case e.StatusCode != 0 && e.Err == nil:
		return fmt.Sprintf("nowpayments %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("nowpayments %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("nowpayments %s: %s", e.Op, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
