package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/richinex/geoassist/backend"
	"github.com/richinex/geoassist/geometry"
)

// ErrorCode classifies a failed tool result for the model.
type ErrorCode string

const (
	CodeInvalidArguments     ErrorCode = "InvalidArguments"
	CodeUnknownTool          ErrorCode = "UnknownTool"
	CodeMissingRegion        ErrorCode = "MissingRegion"
	CodeInvalidGeometryShape ErrorCode = "InvalidGeometryShape"
	CodeAreaExceeded         ErrorCode = "AreaExceeded"
	CodeRemoteServiceFailure ErrorCode = "RemoteServiceFailure"
	CodeEmptyResultPayload   ErrorCode = "EmptyResultPayload"
	CodeRepeatedFailure      ErrorCode = "RepeatedFailure"
	CodeInternal             ErrorCode = "Internal"
)

// ErrMissingRegion is returned when an analysis is requested before the
// user selected a region on the map.
var ErrMissingRegion = errors.New("no region is selected; ask the user to draw or select an area on the map first")

// ArgumentError reports arguments that failed decoding or validation.
type ArgumentError struct {
	Tool string
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// UnknownToolError reports a call to a name not in the registry.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// RepeatedFailureError is returned instead of dispatching a tool that
// already failed earlier in the same turn.
type RepeatedFailureError struct {
	Tool string
	Prev error
}

func (e *RepeatedFailureError) Error() string {
	return fmt.Sprintf("%s already failed in this turn (%v); do not call it again, explain the failure to the user instead",
		e.Tool, e.Prev)
}

// CodeOf maps an error to its ErrorCode.
func CodeOf(err error) ErrorCode {
	var (
		argErr     *ArgumentError
		unknownErr *UnknownToolError
		repeatErr  *RepeatedFailureError
		areaErr    *geometry.AreaExceededError
		serviceErr *backend.ServiceError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &repeatErr):
		return CodeRepeatedFailure
	case errors.As(err, &argErr):
		return CodeInvalidArguments
	case errors.As(err, &unknownErr):
		return CodeUnknownTool
	case errors.Is(err, ErrMissingRegion):
		return CodeMissingRegion
	case errors.Is(err, geometry.ErrInvalidShape):
		return CodeInvalidGeometryShape
	case errors.As(err, &areaErr):
		return CodeAreaExceeded
	case errors.Is(err, backend.ErrEmptyResult):
		return CodeEmptyResultPayload
	case errors.As(err, &serviceErr):
		return CodeRemoteServiceFailure
	default:
		return CodeInternal
	}
}

// describeValidation turns validator errors into one line the model can act on.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "required_with":
			parts = append(parts, fmt.Sprintf("%s is required when %s is given", fe.Field(), fe.Param()))
		case "datetime":
			parts = append(parts, fmt.Sprintf("%s must be a date formatted YYYY-MM-DD", fe.Field()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", ")))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %q check", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(parts, "; "))
}
