package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfig              = errors.New("configuration error")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrMalformedVerdict    = errors.New("malformed verdict")
	ErrTemporary           = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ConfigError builds an ErrConfig for a rejected setting.
func ConfigError(operation, format string, args ...any) error {
	return WrapError(ErrConfig, operation, fmt.Errorf(format, args...))
}
