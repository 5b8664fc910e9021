package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names, which is what the model sends.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Checker is implemented by argument types with rules that struct tags
// cannot express, such as ordering between two fields.
type Checker interface {
	Check() error
}

// Handler runs a tool with decoded, validated arguments.
type Handler[A any] func(ctx context.Context, turn TurnContext, args A) ToolResult

// Define builds a Tool whose arguments decode into A. Unknown fields are
// rejected, then `validate` struct tags and Checker run before the
// handler can be reached.
func Define[A any](meta ToolMetadata, handler Handler[A]) Tool {
	return &definedTool[A]{meta: meta, handler: handler}
}

type definedTool[A any] struct {
	meta    ToolMetadata
	handler Handler[A]
}

func (t *definedTool[A]) Metadata() ToolMetadata {
	return t.meta
}

func (t *definedTool[A]) Bind(raw json.RawMessage) (Call, error) {
	var args A
	if err := decodeStrict(raw, &args); err != nil {
		return nil, &ArgumentError{Tool: t.meta.Name, Err: err}
	}
	if err := validate.Struct(&args); err != nil {
		return nil, &ArgumentError{Tool: t.meta.Name, Err: describeValidation(err)}
	}
	if c, ok := any(&args).(Checker); ok {
		if err := c.Check(); err != nil {
			return nil, &ArgumentError{Tool: t.meta.Name, Err: err}
		}
	}
	return func(ctx context.Context, turn TurnContext) ToolResult {
		return t.handler(ctx, turn, args)
	}, nil
}

func decodeStrict(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after arguments object")
	}
	return nil
}
