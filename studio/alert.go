package studio

import (
	"time"
)

type (
	// Alert is a transient notification shown to the user, e.g. a rejected
	// engine command. Alerts never abort anything; the worst failure in
	// this layer is a recoverable display glitch.
	Alert struct {
		Name     string
		Message  string
		Priority AlertPriority
		Duration time.Duration
	}

	AlertPriority int

	// alertList keeps the visible alerts. An alert posted with the same
	// Name as a visible one replaces it instead of stacking, so a flapping
	// transport can only ever show one line.
	alertList struct {
		alerts []Alert
	}
)

const (
	Info AlertPriority = iota
	Warning
	Error
)

const defaultAlertDuration = 3 * time.Second

func (l *alertList) add(a Alert) {
	if a.Duration == 0 {
		a.Duration = defaultAlertDuration
	}
	for i := range l.alerts {
		if l.alerts[i].Name == a.Name {
			if l.alerts[i].Priority <= a.Priority {
				l.alerts[i] = a
			}
			return
		}
	}
	l.alerts = append(l.alerts, a)
}

func (l *alertList) dismiss(name string) {
	for i := range l.alerts {
		if l.alerts[i].Name == name {
			l.alerts = append(l.alerts[:i], l.alerts[i+1:]...)
			return
		}
	}
}

// Iterate calls yield for each visible alert, oldest first, stopping if
// yield returns false.
func (l *alertList) Iterate(yield func(Alert) bool) {
	for _, a := range l.alerts {
		if !yield(a) {
			return
		}
	}
}
