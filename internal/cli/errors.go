package cli

import "errors"

var (
	// ErrRunAborted — run прерван критичным шагом или отменён.
	ErrRunAborted = errors.New("run did not complete")

	// ErrInvalidSet — значение --set не в формате KEY=VALUE.
	ErrInvalidSet = errors.New("invalid --set value, expected KEY=VALUE")
)
