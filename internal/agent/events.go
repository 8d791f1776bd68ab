package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// Event types emitted by study sessions.
const (
	EventSectionViewed   = "section_viewed"
	EventSectionToggled  = "section_toggled"
	EventQuizAnswered    = "quiz_answered"
	EventQuizFinished    = "quiz_finished"
	EventSearchPerformed = "search_performed"
)

// Event represents an analytics event. Events are write-only: nothing in
// a session is ever restored from them.
type Event struct {
	SessionID string
	UserID    string
	Channel   string
	EventType string
	Data      map[string]any
	CreatedAt time.Time
}

// EventLogger defines event logging behavior.
type EventLogger interface {
	LogEvent(event Event) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(Event) error {
	return nil
}

// MemoryEventLogger stores events in memory for tests.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{
		events: []Event{},
	}
}

func (l *MemoryEventLogger) LogEvent(event Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// OfType returns the logged events with the given type.
func (l *MemoryEventLogger) OfType(eventType string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

const studyEventsSchema = `CREATE TABLE IF NOT EXISTS study_events (
	id          BIGSERIAL PRIMARY KEY,
	session_id  TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	channel     TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	data        JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS study_events_type_idx ON study_events (event_type, created_at)`

// PostgresEventLogger inserts events into the study_events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

// EnsureSchema creates the study_events table if it does not exist.
func (l *PostgresEventLogger) EnsureSchema(ctx context.Context) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if _, err := l.pool.Exec(ctx, studyEventsSchema); err != nil {
		return fmt.Errorf("create study_events: %w", err)
	}
	return nil
}

func (l *PostgresEventLogger) LogEvent(event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO study_events (session_id, user_id, channel, event_type, data, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		event.SessionID,
		event.UserID,
		event.Channel,
		event.EventType,
		string(data),
		createdAt,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged",
		"type", event.EventType,
		"session_id", event.SessionID,
		"user_id", event.UserID,
	)
	return nil
}

// CountEvents returns the number of stored events per type.
func (l *PostgresEventLogger) CountEvents(ctx context.Context) (map[string]int64, error) {
	if l == nil || l.pool == nil {
		return nil, fmt.Errorf("event logger pool is nil")
	}
	rows, err := l.pool.Query(ctx,
		`SELECT event_type, count(*) FROM study_events GROUP BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("query event counts: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var eventType string
		var n int64
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[eventType] = n
	}
	return counts, rows.Err()
}

// Counter increments named counters. *cache.Cache satisfies it.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
}

// CounterPrefix namespaces counters by content version so a content change
// starts fresh totals.
func CounterPrefix(version string) string {
	return "study:" + version + ":"
}

// CountingEventLogger keeps one aggregate counter per event type.
type CountingEventLogger struct {
	counter Counter
	prefix  string
}

func NewCountingEventLogger(counter Counter, version string) *CountingEventLogger {
	return &CountingEventLogger{counter: counter, prefix: CounterPrefix(version)}
}

func (l *CountingEventLogger) LogEvent(event Event) error {
	if l == nil || l.counter == nil {
		return fmt.Errorf("event counter is nil")
	}
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	if _, err := l.counter.Incr(ctx, l.prefix+event.EventType); err != nil {
		return fmt.Errorf("count event: %w", err)
	}
	return nil
}

// MultiEventLogger fans an event out to every logger and joins their errors.
type MultiEventLogger []EventLogger

func (m MultiEventLogger) LogEvent(event Event) error {
	var errs []error
	for _, l := range m {
		if err := l.LogEvent(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
