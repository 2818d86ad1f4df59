package builder

import (
	"errors"
	"fmt"
)

var (
	ErrBundleNotFound = errors.New("bundle not found")
	ErrConfiguration  = errors.New("invalid bundle configuration")
)

// BundleNotFoundError is returned by Lookup when the kind is unknown or no
// bundle of that kind has the given name.
type BundleNotFoundError struct {
	Kind Kind
	Name string
}

func (err *BundleNotFoundError) Error() string {
	return fmt.Sprintf("no corresponding bundle for %s bundle name: %s", err.Kind, err.Name)
}

func (*BundleNotFoundError) Is(target error) bool {
	return target == ErrBundleNotFound
}

// ConfigurationError reports a bundle definition that cannot be built.
type ConfigurationError struct {
	Bundle string
	Field  string
	Reason string
}

func (err *ConfigurationError) Error() string {
	return fmt.Sprintf("bundle %q: %s %s", err.Bundle, err.Field, err.Reason)
}

func (*ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
