package db

import "errors"

var (
	// ErrConfigMissing indicates the config has no db section, no default
	// database, or no section for the requested name.
	ErrConfigMissing = errors.New("database configuration missing")

	// ErrUnknownDriver indicates `db.<name>.factory` names a driver factory
	// that was never registered.
	ErrUnknownDriver = errors.New("unknown database driver factory")

	// ErrResourceExhausted indicates the pool could not produce a validated
	// connection within its acquire policy.
	ErrResourceExhausted = errors.New("connection pool exhausted")
)
