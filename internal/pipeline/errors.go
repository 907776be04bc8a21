package pipeline

import "codeberg.org/mutker/hostmon/internal/errors"

const (
	ErrUnknownSource  = errors.ErrorCode("pipeline_unknown_source")
	ErrUnknownCompute = errors.ErrorCode("pipeline_unknown_compute")
	ErrMissingTable   = errors.ErrorCode("pipeline_missing_table")
	ErrInvalidColumn  = errors.ErrorCode("pipeline_invalid_column")
	ErrInvalidPattern = errors.ErrorCode("pipeline_invalid_pattern")
	ErrInvalidValue   = errors.ErrorCode("pipeline_invalid_value")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrUnknownSource:  "Source type is not supported",
		ErrUnknownCompute: "Compute type is not supported",
		ErrMissingTable:   "Referenced table is not in the connector namespace",
		ErrInvalidColumn:  "Column number is out of range",
		ErrInvalidPattern: "Invalid regular expression",
		ErrInvalidValue:   "Invalid compute operand",
	})
}
