package lib

import "fmt"

// WrapError wraps err into baseErr so that errors.Is matches both
func WrapError(baseErr error, err error) error {
	return fmt.Errorf("%w: %w", baseErr, err)
}
