package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/fleetdm/livequery/server/fleet"
	"github.com/gorilla/mux"
)

// errBadRoute is used for mux errors
var errBadRoute = errors.New("bad route")

// errorer is implemented by response structs that carry a service error.
type errorer interface {
	error() error
}

type jsonError struct {
	Message string              `json:"message"`
	Errors  []map[string]string `json:"errors,omitempty"`
}

// use baseError to encode an jsonError.Errors field with an error that has
// a generic "name" field.
func baseError(err string) []map[string]string {
	return []map[string]string{
		{
			"name":   "base",
			"reason": err,
		},
	}
}

type validationErrorInterface interface {
	error
	Invalid() []map[string]string
}

// badRequestError is returned when the request could not be decoded.
type badRequestError struct {
	message string
}

func (e badRequestError) Error() string   { return e.message }
func (e badRequestError) StatusCode() int { return http.StatusBadRequest }

func badRequest(msg string) error {
	return badRequestError{message: msg}
}

func encodeResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if e, ok := response.(errorer); ok && e.error() != nil {
		encodeError(ctx, e.error(), w)
		return nil
	}
	return jsonMarshal(w, response)
}

func jsonMarshal(w http.ResponseWriter, response interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(response)
}

// encode error and status header to the client
func encodeError(_ context.Context, err error, w http.ResponseWriter) {
	status := http.StatusInternalServerError
	var sce fleet.ErrWithStatusCode
	if errors.As(err, &sce) {
		status = sce.StatusCode()
	}

	je := jsonError{
		Message: err.Error(),
		Errors:  baseError(err.Error()),
	}
	var ve validationErrorInterface
	if errors.As(err, &ve) {
		je.Message = "Validation Failed"
		je.Errors = ve.Invalid()
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	jsonMarshal(w, je) //nolint:errcheck
}

func idFromRequest(r *http.Request, name string) (uint, error) {
	vars := mux.Vars(r)
	id, ok := vars[name]
	if !ok {
		return 0, errBadRoute
	}
	uid, err := strconv.ParseUint(id, 10, 0)
	if err != nil || uid == 0 {
		return 0, badRequest("invalid " + name + ": " + id)
	}
	return uint(uid), nil
}
