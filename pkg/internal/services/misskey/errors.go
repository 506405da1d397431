package misskey

import (
	"errors"
	"fmt"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
)

var (
	// ErrNetwork marks a server that could not be reached or did not answer.
	ErrNetwork = errors.New("network error")
	// ErrAuth marks a missing, expired or revoked access token.
	ErrAuth = errors.New("authentication failed")
)

var authErrorCodes = []string{
	"CREDENTIAL_REQUIRED",
	"AUTHENTICATION_FAILED",
	"INVALID_TOKEN",
	"YOUR_ACCOUNT_SUSPENDED",
}

// APIError is the error object a Misskey server answers with.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

func (e *APIError) Error() string {
	switch {
	case len(e.Message) > 0 && len(e.Code) > 0:
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	case len(e.Message) > 0:
		return e.Message
	case len(e.Code) > 0:
		return fmt.Sprintf("API Error: %s", e.Code)
	default:
		return fmt.Sprintf("unexpected status code: %d", e.Status)
	}
}

func (e *APIError) IsAuth() bool {
	return e.Status == http.StatusUnauthorized || lo.Contains(authErrorCodes, e.Code)
}

func (e *APIError) Unwrap() error {
	if e.IsAuth() {
		return ErrAuth
	}
	return nil
}

func parseAPIError(status int, body []byte) error {
	var wrapper struct {
		Error APIError `json:"error"`
	}
	_ = jsoniter.Unmarshal(body, &wrapper)
	wrapper.Error.Status = status
	if len(wrapper.Error.Message) == 0 && len(wrapper.Error.Code) == 0 && len(body) > 0 && len(body) < 512 {
		wrapper.Error.Message = fmt.Sprintf("unexpected status code: %d, response: %s", status, body)
	}
	return &wrapper.Error
}

func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}
