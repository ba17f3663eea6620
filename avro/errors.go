package avro

import "errors"

// Error kinds returned by the core decoder. EndOfInput and Finished are
// control-flow signals a caller is expected to handle, not failures.
var (
	ErrEndOfInput        = errors.New("avro: end of input")
	ErrFinished          = errors.New("avro: decoder finished")
	ErrMalformedVarint   = errors.New("avro: malformed varint")
	ErrUnknownSchemaType = errors.New("avro: unknown schema type")
	ErrPathNotFound      = errors.New("avro: path not found")
)
