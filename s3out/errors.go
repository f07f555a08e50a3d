package s3out

import "errors"

var (
	// ErrInvalidConfig marks invalid or missing static configuration,
	// including misuse of single-target operations. Never retried.
	ErrInvalidConfig = errors.New("s3out: invalid configuration")

	// ErrNotImplemented marks operations outside the supported GTiff
	// encoding, such as web output conversion.
	ErrNotImplemented = errors.New("s3out: not implemented")
)
