// logging.go - Structured Logging for the Reactor
//
// All output goes through an optional logiface logger, configured per loop
// via WithLogger. A nil logger is valid: logiface builders are nil-safe, so
// every call below degrades to a no-op without branching at the call site.
//
// Categories mirror the loop's concerns: "lifecycle", "registration",
// "poll" and "dispatch". Entries that can repeat once per descriptor or per
// cycle are marked with Limit, which applies when the logger was configured
// with category rate limits.

package reactor

import (
	"github.com/joeycumines/logiface"
)

const (
	categoryLifecycle    = "lifecycle"
	categoryRegistration = "registration"
	categoryPoll         = "poll"
	categoryDispatch     = "dispatch"
)

// logEvent starts a builder carrying the fields common to every entry.
func (l *Loop[C]) logEvent(b *logiface.Builder[logiface.Event], category string) *logiface.Builder[logiface.Event] {
	return b.Str("category", category).Uint64("loop", l.id)
}

func (l *Loop[C]) logCreated(capacity, maxEvents int) {
	l.logEvent(l.logger.Debug(), categoryLifecycle).
		Int("capacity", capacity).
		Int("max_events", maxEvents).
		Bool("metrics", l.metrics != nil).
		Log("loop created")
}

func (l *Loop[C]) logClosed(err error) {
	if err != nil {
		l.logEvent(l.logger.Err(), categoryLifecycle).
			Err(err).
			Log("loop closed with error")
		return
	}
	l.logEvent(l.logger.Debug(), categoryLifecycle).
		Log("loop closed")
}

func (l *Loop[C]) logInterest(op string, fd int, mask Interest) {
	l.logEvent(l.logger.Debug(), categoryRegistration).
		Str("op", op).
		Int("fd", fd).
		Stringer("mask", mask).
		Log("interest updated")
}

func (l *Loop[C]) logRegistrationFailed(err *RegistrationError, mask Interest) {
	l.logEvent(l.logger.Err().Limit(), categoryRegistration).
		Str("op", err.Op).
		Int("fd", err.FD).
		Stringer("mask", mask).
		Err(err.Cause).
		Log("registration failed")
}

func (l *Loop[C]) logWaitFailed(err error) {
	l.logEvent(l.logger.Err(), categoryPoll).
		Err(err).
		Log("wait failed, loop is unusable")
}

func (l *Loop[C]) logCancelled() {
	l.logEvent(l.logger.Debug(), categoryPoll).
		Log("cycle cancelled")
}

func (l *Loop[C]) logStale(ev Event) {
	l.logEvent(l.logger.Trace().Limit(), categoryDispatch).
		Int("fd", ev.FD).
		Stringer("ready", ev.Ready).
		Log("skipped ready entry without registration")
}
