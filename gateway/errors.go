package gateway

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeAuthExpired   = "GATEWAY_AUTH_EXPIRED"
	TextCodeUnauthorized  = "GATEWAY_UNAUTHORIZED"
	TextCodeRequestFailed = "GATEWAY_REQUEST_FAILED"
)

// ErrAuthExpired is returned when no refresh credential is stored or the
// refresh itself failed. Callers must authenticate again.
var ErrAuthExpired = goerrors.New("authentication expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnauthorized matches a 401 that survived the single retry.
var ErrUnauthorized = goerrors.New("request unauthorized", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthorized).
	WithCode(goerrors.CodeUnauthorized)

// ErrRequestFailed matches every other transport or server failure.
var ErrRequestFailed = goerrors.New("request failed", goerrors.CategoryOperation).
	WithTextCode(TextCodeRequestFailed)

// StatusError is returned for responses outside the 2xx/3xx range.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(string(e.Body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// Is lets callers match on ErrUnauthorized or ErrRequestFailed.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrRequestFailed:
		return e.StatusCode != http.StatusUnauthorized
	}
	return false
}
