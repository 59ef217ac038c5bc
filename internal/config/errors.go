package config

import "errors"

// ErrInvalidConfig wraps every validation failure Validate reports.
var ErrInvalidConfig = errors.New("invalid config")
