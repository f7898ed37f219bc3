package config

import (
	"github.com/go-playground/validator/v10"
)

func NewValidator() (*validator.Validate, error) {
	return validator.New(), nil
}
