package tools

import (
	"errors"
	"fmt"
)

var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrToolAlreadyExists = errors.New("tool already exists")
	ErrInvalidArgs       = errors.New("invalid tool arguments")
)

// Error ties a registry or argument failure to the tool it concerns.
// errors.Is matches both Kind and Cause.
type Error struct {
	Kind    error
	Tool    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == ErrInvalidArgs && e.Cause != nil:
		return fmt.Sprintf("invalid arguments for tool %s: %s: %v", e.Tool, e.Message, e.Cause)
	case e.Kind == ErrInvalidArgs:
		return fmt.Sprintf("invalid arguments for tool %s: %s", e.Tool, e.Message)
	default:
		return fmt.Sprintf("%v: %s", e.Kind, e.Tool)
	}
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func NewToolNotFoundError(name string) error {
	return &Error{Kind: ErrToolNotFound, Tool: name}
}

func NewToolAlreadyExistsError(name string) error {
	return &Error{Kind: ErrToolAlreadyExists, Tool: name}
}

func NewInvalidArgsError(tool, message string, cause error) error {
	return &Error{Kind: ErrInvalidArgs, Tool: tool, Message: message, Cause: cause}
}
