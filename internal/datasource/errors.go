package datasource

import "errors"

var (
	// ErrDescriptorNotFound indicates neither `<id>.ds.xml` nor `<id>.ds.js`
	// exists under the configured data source path.
	ErrDescriptorNotFound = errors.New("data source descriptor not found")

	// ErrDescriptorParse indicates a descriptor file could not be decoded.
	ErrDescriptorParse = errors.New("data source descriptor parse error")

	// ErrTypeMismatch indicates a descriptor's ID differs from the requested
	// id.
	ErrTypeMismatch = errors.New("data source descriptor id mismatch")

	// ErrUnknownServerType indicates the descriptor names a serverType or
	// serverConstructor with no registered implementation.
	ErrUnknownServerType = errors.New("unknown data source server type")

	// ErrNotImplemented indicates the data source does not support the
	// requested operation type.
	ErrNotImplemented = errors.New("operation not implemented by data source")

	// ErrMissingPrimaryKey indicates a required primary-key value is absent.
	ErrMissingPrimaryKey = errors.New("missing primary key value")

	// ErrRowNotFound indicates an update or remove affected no rows.
	ErrRowNotFound = errors.New("row does not exist")
)
