package errors

// ErrorCode identifies a failure class across the daemon
type ErrorCode string

// Error is a coded error. Transient errors describe conditions the
// acquisition and publish loops retry on their own; everything else ends the
// operation that hit it.
type Error interface {
	error
	Code() ErrorCode
	Transient() bool
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory builds coded errors
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
