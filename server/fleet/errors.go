package fleet

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrCampaignNotFound = errors.New("campaign not found")

// ErrWithStatusCode is an interface for errors that should set a specific HTTP
// status code.
type ErrWithStatusCode interface {
	error
	StatusCode() int
}

// ErrWithInternal is an interface for errors that include extra "internal"
// information that should be logged in server logs but not sent to clients.
type ErrWithInternal interface {
	error
	// Internal returns the error string that must only be logged internally,
	// not returned to the client.
	Internal() string
}

// NotFoundError is implemented by errors reporting a missing entity.
type NotFoundError interface {
	error
	IsNotFound() bool
}

// IsNotFound returns true if err is a not found error.
func IsNotFound(err error) bool {
	var nfe NotFoundError
	if errors.As(err, &nfe) {
		return nfe.IsNotFound()
	}
	return false
}

type campaignNotFoundError struct {
	ID uint
}

// NewCampaignNotFoundError returns the error for a campaign ID that is not
// tracked.
func NewCampaignNotFoundError(id uint) error {
	return &campaignNotFoundError{ID: id}
}

func (e *campaignNotFoundError) Error() string {
	return fmt.Sprintf("campaign %d was not found", e.ID)
}

func (e *campaignNotFoundError) IsNotFound() bool { return true }

func (e *campaignNotFoundError) StatusCode() int { return http.StatusNotFound }

func (e *campaignNotFoundError) Is(target error) bool { return target == ErrCampaignNotFound }

// AlreadyExistsError is returned when a campaign ID is registered twice.
type AlreadyExistsError struct {
	ID uint
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("campaign %d already exists", e.ID)
}

func (e *AlreadyExistsError) StatusCode() int { return http.StatusConflict }

// InvalidArgumentError is the error returned when invalid data is presented to
// a service method.
type InvalidArgumentError struct {
	Errors []InvalidArgument
}

// InvalidArgument is the details about a single invalid argument.
type InvalidArgument struct {
	name   string
	reason string
}

// NewInvalidArgumentError returns a InvalidArgumentError with at least
// one error.
func NewInvalidArgumentError(name, reason string) *InvalidArgumentError {
	var invalid InvalidArgumentError
	invalid.Append(name, reason)
	return &invalid
}

func (e *InvalidArgumentError) Append(name, reason string) {
	e.Errors = append(e.Errors, InvalidArgument{
		name:   name,
		reason: reason,
	})
}

func (e *InvalidArgumentError) HasErrors() bool {
	return len(e.Errors) != 0
}

// Error implements the error interface.
func (e InvalidArgumentError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "validation failed"
	case 1:
		return fmt.Sprintf("validation failed: %s %s", e.Errors[0].name, e.Errors[0].reason)
	default:
		return fmt.Sprintf("validation failed: %s %s and %d other errors", e.Errors[0].name, e.Errors[0].reason,
			len(e.Errors))
	}
}

func (e InvalidArgumentError) StatusCode() int { return http.StatusUnprocessableEntity }

func (e InvalidArgumentError) Invalid() []map[string]string {
	var invalid []map[string]string
	for _, i := range e.Errors {
		invalid = append(invalid, map[string]string{"name": i.name, "reason": i.reason})
	}
	return invalid
}

// MalformedFrameError is returned when a frame is missing a required field or
// could not be decoded. The aggregate the frame was applied to is left
// untouched.
type MalformedFrameError struct {
	FrameType string
	Field     string
	Reason    string
	Err       error
}

// NewMalformedFrameError returns the error for a frame missing field.
func NewMalformedFrameError(frameType, field, reason string) *MalformedFrameError {
	return &MalformedFrameError{FrameType: frameType, Field: field, Reason: reason}
}

func (e *MalformedFrameError) Error() string {
	msg := fmt.Sprintf("malformed %q frame", e.FrameType)
	if e.Field != "" {
		msg += fmt.Sprintf(": %s %s", e.Field, e.Reason)
	} else if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedFrameError) Unwrap() error { return e.Err }

func (e *MalformedFrameError) StatusCode() int { return http.StatusBadRequest }

// IsMalformedFrame returns true if err is or wraps a MalformedFrameError.
func IsMalformedFrame(err error) bool {
	var mfe *MalformedFrameError
	return errors.As(err, &mfe)
}
