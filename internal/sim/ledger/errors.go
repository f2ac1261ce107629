package ledger

import "errors"

var (
	ErrInvalidCapacity = errors.New("invalid capacity")
	ErrMissingID       = errors.New("missing id")
	ErrDuplicateID     = errors.New("duplicate id")
	ErrEmptyScenario   = errors.New("empty scenario")
)
