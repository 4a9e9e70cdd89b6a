package client

import (
	"errors"
	"fmt"
)

var ErrMalformedResponse = errors.New("malformed response")

// StatusError is returned for any non-2xx answer from the backend.
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API %d: %s", e.Code, e.Msg)
}
