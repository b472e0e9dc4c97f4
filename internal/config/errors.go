package config

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. ErrUnknownStore is also an ErrInvalidConfig.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
	ErrUnknownStore  = fmt.Errorf("%w: unknown store", ErrInvalidConfig)
)
