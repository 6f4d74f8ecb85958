package stock

import (
	"errors"
)

// Error kinds. Match them with errors.Is.
var (
	ErrNotConfigured   = errors.New("provider not configured")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRateLimited     = errors.New("rate limited")
	ErrProvider        = errors.New("provider error")
	ErrNoActiveEditor  = errors.New("no active editor")
	ErrNoWorkspace     = errors.New("no workspace")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrNoDownloadURL   = errors.New("no download url")
	ErrNotAnImage      = errors.New("not an image")
)

// Error carries one human-readable message. Err holds the underlying cause
// for logging and never reaches Error().
type Error struct {
	Kind     error
	Provider Provider
	Message  string
	Err      error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message flattens any error into the single string shown to the user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
