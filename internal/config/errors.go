package config

import "errors"

// Configuration errors.
//
// Design decision: Validation returns one sentinel wrapped with the name of
// the offending field. Callers branch on errors.Is(err, ErrInvalidConfig)
// and print the message; nothing needs to tell one bad field from another.
var (
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")
)
