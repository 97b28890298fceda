package app

// StopReason says why the app is shutting down. It is logged and passed on
// to plugins.
type StopReason string

const (
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
)
