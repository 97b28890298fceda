// Package logx is the structured logger used across countdownbot.
//
// Logger wraps zerolog with field helpers and derived loggers. A Service owns
// the sinks (console, JSON file, rate-limited Telegram) and can swap them at
// runtime on config reload; loggers taken from it follow the swap.
package logx
