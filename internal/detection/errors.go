package detection

import "codeberg.org/mutker/hostmon/internal/errors"

const (
	ErrInvalidExpectation = errors.ErrorCode("detection_invalid_expectation")
	ErrUnknownCriterion   = errors.ErrorCode("detection_unknown_criterion")
	ErrListProcesses      = errors.ErrorCode("detection_list_processes")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrInvalidExpectation: "Expected result is not a valid regular expression",
		ErrUnknownCriterion:   "Criterion type is not supported",
		ErrListProcesses:      "Failed to list running processes",
	})
}
