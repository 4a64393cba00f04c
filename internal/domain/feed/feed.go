// Package feed holds the controller console feed: alerts and the operations log.
// Both lists are newest first and bounded; ids increase monotonically for the
// lifetime of a session, across region switches.
// This package is PURE and must NOT import any infrastructure packages.
package feed

import "time"

const (
	// MaxAlerts is the number of alerts retained on the console.
	MaxAlerts = 5
	// MaxLogs is the number of log entries retained on the console.
	MaxLogs = 100

	timestampLayout = "15:04:05"
)

// LogType classifies a log entry.
type LogType string

const (
	LogAI     LogType = "AI"
	LogSystem LogType = "System"
	LogAlert  LogType = "Alert"
	LogInfo   LogType = "Info"
)

// Alert is a notification raised to the controller, optionally with an explanation.
type Alert struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	XAI       string `json:"xai,omitempty"`
}

// LogEntry is a single line of the operations log.
type LogEntry struct {
	ID        int     `json:"id"`
	Type      LogType `json:"type"`
	Message   string  `json:"message"`
	Timestamp string  `json:"timestamp"`
}

// Feed is the bounded console state.
type Feed struct {
	Alerts      []Alert    `json:"alerts"`
	Logs        []LogEntry `json:"logs"`
	NextAlertID int        `json:"-"`
	NextLogID   int        `json:"-"`
}

// New returns an empty feed whose ids start at 1.
func New() Feed {
	return Feed{
		Alerts:      []Alert{},
		Logs:        []LogEntry{},
		NextAlertID: 1,
		NextLogID:   1,
	}
}

// AddLog prepends a log entry, evicting the oldest beyond MaxLogs.
func (f *Feed) AddLog(logType LogType, message string, now time.Time) LogEntry {
	if f.NextLogID < 1 {
		f.NextLogID = 1
	}
	entry := LogEntry{
		ID:        f.NextLogID,
		Type:      logType,
		Message:   message,
		Timestamp: now.Format(timestampLayout),
	}
	f.NextLogID++
	f.Logs = prepend(f.Logs, entry, MaxLogs)
	return entry
}

// AddAlert prepends an alert (evicting beyond MaxAlerts) and mirrors it into
// the log as "<title>: <message>".
func (f *Feed) AddAlert(title, message, xai string, now time.Time) Alert {
	if f.NextAlertID < 1 {
		f.NextAlertID = 1
	}
	alert := Alert{
		ID:        f.NextAlertID,
		Title:     title,
		Message:   message,
		Timestamp: now.Format(timestampLayout),
		XAI:       xai,
	}
	f.NextAlertID++
	f.Alerts = prepend(f.Alerts, alert, MaxAlerts)
	f.AddLog(LogAlert, title+": "+message, now)
	return alert
}

// ClearAlerts drops all alerts but keeps the id counter.
func (f *Feed) ClearAlerts() {
	f.Alerts = []Alert{}
}

// Clone returns a copy that shares no backing arrays with f.
func (f Feed) Clone() Feed {
	c := f
	c.Alerts = append(make([]Alert, 0, len(f.Alerts)), f.Alerts...)
	c.Logs = append(make([]LogEntry, 0, len(f.Logs)), f.Logs...)
	return c
}

func prepend[T any](list []T, item T, limit int) []T {
	keep := len(list)
	if keep > limit-1 {
		keep = limit - 1
	}
	out := make([]T, 0, keep+1)
	out = append(out, item)
	return append(out, list[:keep]...)
}
