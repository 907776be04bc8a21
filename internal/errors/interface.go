package errors

// ErrorCode identifies a failure class. Codes are stable strings so they can
// be logged, matched and counted.
type ErrorCode string

// Error is a coded failure. Data carries whatever identifies the failing
// item (a query, a monitor id); the wrapped cause stays reachable through
// Unwrap.
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory creates coded errors. Every package takes one with New() at the
// top of a function that returns several.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
