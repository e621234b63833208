package monitor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pders01/rollguard/internal/models"
)

// EventLog appends error events to a JSONL file so that other processes
// can inspect them
type EventLog struct {
	path string
	mu   sync.Mutex
}

// NewEventLog creates a log writing to path
func NewEventLog(path string) *EventLog {
	return &EventLog{path: path}
}

// Path returns the log file path
func (l *EventLog) Path() string { return l.path }

// Write appends one event
func (l *EventLog) Write(ev models.ErrorEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(ev)
}

// Clear truncates the log
func (l *EventLog) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Truncate(l.path, 0); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ReadEventLog reads all events from a JSONL file. A missing file holds no
// events; malformed lines are skipped.
func ReadEventLog(path string) ([]models.ErrorEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	var events []models.ErrorEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var ev models.ErrorEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}

// Summarize builds a summary from a list of events as read back from an
// event log. Monitor-only fields are left zero.
func Summarize(events []models.ErrorEvent, now time.Time) models.MonitorSummary {
	s := summarize(events, now)
	s.TotalErrors = len(events)
	s.CountsByType = make(map[string]int)
	for _, ev := range events {
		s.CountsByType[ev.Type]++
	}
	return s
}

func summarize(events []models.ErrorEvent, now time.Time) models.MonitorSummary {
	var s models.MonitorSummary
	hourAgo := now.Add(-time.Hour)
	for i := range events {
		ev := events[i]
		if ev.Timestamp.After(hourAgo) {
			s.RecentErrorsInLastHour++
		}
		if s.LastErrorAt == nil || ev.Timestamp.After(*s.LastErrorAt) {
			ts := ev.Timestamp
			s.LastErrorAt = &ts
		}
	}
	return s
}
