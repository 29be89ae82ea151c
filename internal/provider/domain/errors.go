package domain

import (
	"fmt"

	"github.com/bwmarrin/snowflake"

	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

// APIError is a terminal provider failure; the poll loop does not retry it.
type APIError struct {
	Provider     usagedomain.Provider
	ConnectionID snowflake.ID
	StatusCode   int
	Message      string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "provider api error"
	}
	return fmt.Sprintf("%s poll failed for %d: %s (%d)", e.Provider, e.ConnectionID, msg, e.StatusCode)
}

// RetryableError marks 429s and transient 5xx responses.
type RetryableError struct {
	APIError
}

func NewAPIError(provider usagedomain.Provider, connID snowflake.ID, status int, message string) *APIError {
	return &APIError{Provider: provider, ConnectionID: connID, StatusCode: status, Message: message}
}

func NewRetryableError(provider usagedomain.Provider, connID snowflake.ID, status int, message string) *RetryableError {
	return &RetryableError{APIError{Provider: provider, ConnectionID: connID, StatusCode: status, Message: message}}
}
