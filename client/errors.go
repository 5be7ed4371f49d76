package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// Sentinel errors for stable classification across layers.
var (
	// ErrSessionExpired indicates the refresh token was missing or the
	// refresh call was rejected; the caller must re-authenticate.
	ErrSessionExpired = errors.New("session expired")

	// ErrInsufficientFunds indicates the wallet cannot cover a reservation.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// APIError is any non-2xx response other than the handled cases. The raw
// body is retained so callers can inspect fields this client does not model.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// InsufficientFundsError carries the shortfall details from a 402 response.
// Amounts are in cents.
type InsufficientFundsError struct {
	Required  int64
	Available int64
	Shortfall int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %d, available %d (shortfall %d)",
		e.Required, e.Available, e.Shortfall)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// parseAPIError classifies a non-2xx response. Error bodies are loosely
// typed: the message may live under "detail", "message", or "error".
func parseAPIError(statusCode int, body []byte) error {
	if statusCode == http.StatusPaymentRequired {
		return &InsufficientFundsError{
			Required:  gjson.GetBytes(body, "required_amount").Int(),
			Available: gjson.GetBytes(body, "available_amount").Int(),
			Shortfall: gjson.GetBytes(body, "shortfall").Int(),
		}
	}

	msg := ""
	for _, field := range []string{"detail", "message", "error"} {
		if v := gjson.GetBytes(body, field); v.Exists() && v.String() != "" {
			msg = v.String()
			break
		}
	}
	if msg == "" {
		msg = http.StatusText(statusCode)
	}

	return &APIError{StatusCode: statusCode, Message: msg, Body: body}
}
