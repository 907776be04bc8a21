package strategy

import "codeberg.org/mutker/hostmon/internal/errors"

const (
	ErrPrepare          = errors.ErrorCode("strategy_prepare_failed")
	ErrExecute          = errors.ErrorCode("strategy_execute_failed")
	ErrPost             = errors.ErrorCode("strategy_post_failed")
	ErrPanic            = errors.ErrorCode("strategy_panic")
	ErrUnknownConnector = errors.ErrorCode("strategy_unknown_connector")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrPrepare:          "Strategy preparation failed",
		ErrExecute:          "Strategy execution failed",
		ErrPost:             "Strategy post-processing failed",
		ErrPanic:            "Strategy panicked",
		ErrUnknownConnector: "Detected connector is missing from the store",
	})
}
