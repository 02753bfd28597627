// Package apperror defines the domain errors shared by services and handlers
// and maps them onto HTTP responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidLinkToken   = errors.New("link token is wrong or expired")
	ErrNotLinked          = errors.New("line user is not linked to a customer")
	ErrUnsupported        = errors.New("not supported")
)

var (
	errRequired       = errors.New("is required")
	errTooLong        = errors.New("is too long")
	errInvalidEmail   = errors.New("must be a valid email address")
	errTooShort       = errors.New("must be at least 8 characters long")
	errDigitsOnly     = errors.New("must contain digits only")
	errInvalidConsent = errors.New("must be one of: あり, なし")
	errInvalidTrim    = errors.New("must be one of: 刈り上げ, ツーブロック, なし")
	errInvalidToken   = errors.New("must be 6 digits")
)

var customErrors = map[string]error{
	"required":         errRequired,
	"required_without": errRequired,
	"max":              errTooLong,
	"email":            errInvalidEmail,
	"min":              errTooShort,
	"numeric":          errDigitsOnly,
	"consent":          errInvalidConsent,
	"trimtype":         errInvalidTrim,
	"linktoken":        errInvalidToken,
}

// ValidationErrors converts validator errors into a list of {field: message}
func ValidationErrors(err error) []map[string]string {
	errList := make([]map[string]string, 0)

	var validationErr validator.ValidationErrors
	if errors.As(err, &validationErr) {
		for _, e := range validationErr {
			errMsg := fmt.Sprintf("%s is invalid", e.Field())
			if v, ok := customErrors[e.Tag()]; ok {
				errMsg = v.Error()
			}
			errList = append(errList, map[string]string{e.Field(): errMsg})
		}
	}
	return errList
}

// HTTPStatus maps a domain error to the response status code
func HTTPStatus(err error) int {
	var validationErr validator.ValidationErrors
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validationErr), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidLinkToken), errors.Is(err, ErrNotLinked):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the error text safe to return to a client
func PublicMessage(err error) string {
	switch HTTPStatus(err) {
	case http.StatusInternalServerError:
		return "internal error"
	case http.StatusUnauthorized:
		switch {
		case errors.Is(err, ErrInvalidLinkToken):
			return ErrInvalidLinkToken.Error()
		case errors.Is(err, ErrNotLinked):
			return ErrNotLinked.Error()
		}
		return ErrInvalidCredentials.Error()
	}
	return err.Error()
}
