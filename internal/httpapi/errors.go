package httpapi

import (
	"errors"
	"net/http"

	"discord_web/internal/bridge"
	"discord_web/internal/storage"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textUnauthorized = "UNAUTHORIZED"
	textNotFound     = "NOT_FOUND"
	textUpstream     = "UPSTREAM_FAILURE"
	textInternal     = "INTERNAL_ERROR"
)

func unauthorized(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(textUnauthorized)
}

func notFound(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(textNotFound)
}

func internal(source error) *goerrors.Error {
	if source == nil {
		return goerrors.New("Internal server error", goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(textInternal)
	}
	return goerrors.Wrap(source, goerrors.CategoryInternal, "Internal server error").
		WithCode(http.StatusInternalServerError).
		WithTextCode(textInternal)
}

// toAPIError maps domain errors onto the envelope written to the browser.
// Causes that are not safe to show collapse into a generic 500.
func toAPIError(err error) *goerrors.Error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich
	}

	var status *bridge.StatusError
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		return unauthorized("Unauthorized")
	case errors.Is(err, bridge.ErrNotFound):
		return notFound("Not found")
	case errors.As(err, &status):
		return goerrors.Wrap(err, goerrors.CategoryExternal, http.StatusText(status.Code)).
			WithCode(status.Code).
			WithTextCode(textUpstream)
	default:
		return internal(err)
	}
}
