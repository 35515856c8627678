package bookingapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound matches any APIError carrying a 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx answer from the booking API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("booking api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("booking api returned status %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// errorBody is the error envelope of the booking API. Either field may be set.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (b *errorBody) text() string {
	if b == nil {
		return ""
	}
	if b.Error != "" {
		return b.Error
	}
	return b.Message
}
