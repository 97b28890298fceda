package countdown

import "errors"

var (
	ErrInvalidTimeSpec       = errors.New("invalid time spec")
	ErrMissingRequiredOption = errors.New("missing required option")
	ErrHelpRequested         = errors.New("help requested")
	ErrUnexpectedArgument    = errors.New("unexpected argument")
)
