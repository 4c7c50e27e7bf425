// Package notify replaces the global bbgo.Notify(...) singleton (seen
// throughout xmaker/strategy.go) with an explicit, injected sink per
// Design Notes §9 ("logging routed through an injected sink"). External
// notification channels (Telegram/Slack in the real bbgo) are out of
// scope per spec.md §1; the default Sink logs through logrus.
package notify

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Sink receives human-readable status notifications from any component.
type Sink interface {
	Notify(format string, args ...any)
}

// LogrusSink logs notifications at Info level through an injected entry.
type LogrusSink struct {
	log *logrus.Entry
}

func NewLogrusSink(log *logrus.Entry) *LogrusSink {
	return &LogrusSink{log: log}
}

func (s *LogrusSink) Notify(format string, args ...any) {
	s.log.Info(fmt.Sprintf(format, args...))
}

// NopSink discards all notifications; useful in tests that don't want log
// noise but still need a Sink value.
type NopSink struct{}

func (NopSink) Notify(format string, args ...any) {}
