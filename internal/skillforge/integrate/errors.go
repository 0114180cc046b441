package integrate

import (
	"errors"
	"fmt"
)

var (
	// ErrTargetExists is returned when the skill directory is already present
	// and overwriting was not requested.
	ErrTargetExists = errors.New("target already exists")
	// ErrNameCollision is returned when an earlier candidate in the same run
	// reserved the same directory name.
	ErrNameCollision = errors.New("name collides with another candidate in this run")
	// ErrMissingMetadata is returned when a field required by the manifest is absent.
	ErrMissingMetadata = errors.New("missing required metadata")
	// ErrInvalidName is returned when a name sanitizes to nothing.
	ErrInvalidName = errors.New("name has no filesystem-safe characters")
)

// IntegrationError reports that one candidate could not be materialized.
type IntegrationError struct {
	Name string
	Err  error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("integrate %q: %v", e.Name, e.Err)
}

func (e *IntegrationError) Unwrap() error {
	return e.Err
}

func wrap(name string, err error) error {
	if err == nil {
		return nil
	}
	var ie *IntegrationError
	if errors.As(err, &ie) {
		return err
	}
	return &IntegrationError{Name: name, Err: err}
}
