package server

import (
	"errors"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-artisan"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const (
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeTooManyAttempts    = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeWrongTokenType     = "WRONG_TOKEN_TYPE"
	TextCodeMissingToken       = "MISSING_TOKEN"
	TextCodeInvalidPayload     = "INVALID_PAYLOAD"
	TextCodeInternal           = "INTERNAL_ERROR"
)

var ErrInvalidCredentials = goerrors.New("invalid identifier or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(http.StatusTooManyRequests)

var ErrTokenExpired = goerrors.New("token expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenMalformed = goerrors.New("token malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

var ErrWrongTokenType = goerrors.New("wrong token type", goerrors.CategoryAuth).
	WithTextCode(TextCodeWrongTokenType).
	WithCode(goerrors.CodeUnauthorized)

var ErrMissingToken = goerrors.New("missing bearer token", goerrors.CategoryAuth).
	WithTextCode(TextCodeMissingToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Category string         `json:"category"`
	TextCode string         `json:"text_code,omitempty"`
	Message  string         `json:"message"`
	Code     int            `json:"code"`
	Details  map[string]any `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorHandler renders errors as JSON envelopes. Rich errors keep their
// category and text code, fiber errors keep their status, anything else is a
// 500.
func ErrorHandler(logger artisan.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = artisan.NopLogger{}
	}
	return func(c *fiber.Ctx, err error) error {
		body := toErrorBody(err)

		if body.Code >= http.StatusInternalServerError {
			logger.Error("%s %s failed: %v", c.Method(), c.Path(), err)
		} else {
			logger.Debug("%s %s rejected: %s details=%s", c.Method(), c.Path(), body.Message, print.MaybePrettyJSON(body.Details))
		}

		return c.Status(body.Code).JSON(errorEnvelope{Error: body})
	}
}

func toErrorBody(err error) ErrorBody {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		details := make(map[string]any, len(verrs))
		for field, ferr := range verrs {
			details[field] = ferr.Error()
		}
		return ErrorBody{
			Category: fmt.Sprint(goerrors.CategoryBadInput),
			TextCode: TextCodeInvalidPayload,
			Message:  "invalid request payload",
			Code:     http.StatusBadRequest,
			Details:  details,
		}
	}

	var richErr *goerrors.Error
	if errors.As(err, &richErr) {
		code := richErr.Code
		if code == 0 {
			code = statusForCategory(richErr)
		}
		return ErrorBody{
			Category: fmt.Sprint(richErr.Category),
			TextCode: richErr.TextCode,
			Message:  richErr.Message,
			Code:     code,
			Details:  richErr.Metadata,
		}
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return ErrorBody{
			Category: categoryForStatus(fiberErr.Code),
			Message:  fiberErr.Message,
			Code:     fiberErr.Code,
		}
	}

	return ErrorBody{
		Category: fmt.Sprint(goerrors.CategoryInternal),
		TextCode: TextCodeInternal,
		Message:  "an unexpected server error occurred",
		Code:     http.StatusInternalServerError,
	}
}

func statusForCategory(richErr *goerrors.Error) int {
	switch richErr.Category {
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func categoryForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return fmt.Sprint(goerrors.CategoryAuth)
	case http.StatusForbidden:
		return fmt.Sprint(goerrors.CategoryAuthz)
	case http.StatusNotFound:
		return fmt.Sprint(goerrors.CategoryNotFound)
	case http.StatusConflict:
		return fmt.Sprint(goerrors.CategoryConflict)
	case http.StatusTooManyRequests:
		return fmt.Sprint(goerrors.CategoryRateLimit)
	}
	if status < http.StatusInternalServerError {
		return fmt.Sprint(goerrors.CategoryBadInput)
	}
	return fmt.Sprint(goerrors.CategoryInternal)
}
