// Package countdown turns a countdown command into a timed stream of chat
// messages.
//
// A command such as
//
//	!countdown -d 5m -i 1m -e 3m 2 minute warning -f Time is up
//
// is parsed into a Spec (duration, interval, events, finish text). The
// Sequencer evaluates a Spec into a Stream that merges three sources on one
// logical timeline:
//   - the start message at t=0
//   - a periodic "time remaining" tick every interval, strictly before the duration
//   - one-off events, sampled once per second and emitted one second after their offset
//
// followed by the finish message once every active source has completed.
package countdown
