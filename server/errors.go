package server

import (
	"net/http"

	"github.com/teranos/strata/errors"
)

// errNoStore is returned by endpoints that need persistence when the server
// runs without a store.
var errNoStore = errors.WithHint(
	errors.Wrap(errors.ErrStorageUnavailable, "no canvas store configured"),
	"set storage.backend in am.toml",
)

// statusFor maps canvas sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.IsInvalidRequestError(err):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrSelfLoop), errors.Is(err, errors.ErrDuplicateEdge), errors.Is(err, errors.ErrDuplicateNode):
		return http.StatusConflict
	case errors.Is(err, errors.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
