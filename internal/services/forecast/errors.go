package forecast

import (
	"errors"
	"fmt"
)

// ErrInvalidQuery is returned before any request when city or API key is empty.
var ErrInvalidQuery = errors.New("invalid forecast query")

// FetchError is a failed forecast retrieval. StatusCode is zero for transport failures.
type FetchError struct {
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("forecast fetch failed: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("forecast fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
