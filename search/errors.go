package search

import (
	"errors"
	"fmt"
)

// ValidationError reports a caller-supplied search parameter out of range
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string { return e.Message }

// MisconfiguredError reports a provider configuration unusable by a plugin
type MisconfiguredError struct {
	Provider string
	Message  string
}

func (e MisconfiguredError) Error() string {
	return fmt.Sprintf("provider %s misconfigured: %s", e.Provider, e.Message)
}

// ErrUnknownProductType is returned when the requested canonical product type
// is absent from the provider's products table
type ErrUnknownProductType struct {
	Provider    string
	ProductType string
}

func (e ErrUnknownProductType) Error() string {
	return fmt.Sprintf("unknown product type %s for provider %s", e.ProductType, e.Provider)
}

// ErrPluginNotFound is returned when no plugin family is registered under the
// configured tag
type ErrPluginNotFound struct {
	Plugin string
}

func (e ErrPluginNotFound) Error() string {
	return fmt.Sprintf("search plugin not found: %s", e.Plugin)
}

// IsCallerError returns whether the error must be surfaced to the caller
// instead of degrading to zero results
func IsCallerError(err error) bool {
	var v ValidationError
	var u ErrUnknownProductType
	return errors.As(err, &v) || errors.As(err, &u)
}

// TransportError reports a failed provider request. Plugins recover from it
// locally: the affected query unit degrades to zero results.
type TransportError struct {
	Provider string
	Endpoint string
	Err      error
}

func (e TransportError) Error() string {
	return fmt.Sprintf("transport error on %s [%s]: %v", e.Provider, e.Endpoint, e.Err)
}

func (e TransportError) Unwrap() error { return e.Err }

// IsTransport returns whether the error is a recoverable transport failure
func IsTransport(err error) bool {
	var t TransportError
	return errors.As(err, &t)
}
