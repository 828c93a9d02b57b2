package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/pulsed/internal/digest"
	"github.com/fyrsmithlabs/pulsed/internal/lifecycle"
	"github.com/fyrsmithlabs/pulsed/internal/notify"
	"github.com/fyrsmithlabs/pulsed/internal/store"
	"github.com/fyrsmithlabs/pulsed/internal/stream"
)

// httpError maps domain errors onto HTTP status codes. Unknown errors
// become 500 with a generic message so internals never leak.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, lifecycle.ErrUnknownDraft),
		errors.Is(err, notify.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())

	case errors.Is(err, lifecycle.ErrValidation),
		errors.Is(err, store.ErrInvalidRecord),
		errors.Is(err, store.ErrEmptyPatch),
		errors.Is(err, notify.ErrInvalidSettings),
		errors.Is(err, digest.ErrMissingClientID),
		errors.Is(err, stream.ErrInvalidTopic):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())

	case errors.Is(err, digest.ErrNoUpdates):
		// Distinct signal, not a server fault: the week has nothing to
		// summarize.
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, stream.ErrDuplicateSubscription):
		return echo.NewHTTPError(http.StatusConflict, err.Error())

	case errors.Is(err, digest.ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())

	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
