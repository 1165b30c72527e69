package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgNotifyChannel = "huddle_kv_events"

// NOTIFY payloads are capped by Postgres (8000 bytes); larger values are
// announced by path only and re-read by the watcher.
const pgMaxNotifyPayload = 7000

const pgSchema = `
CREATE TABLE IF NOT EXISTS huddle_kv (
	path TEXT PRIMARY KEY,
	value BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS huddle_counters (
	path TEXT PRIMARY KEY,
	value BIGINT NOT NULL
);
`

type pgWatcher struct {
	prefix string
	events chan Event
	done   chan struct{}
}

// PostgresStore implements Store on PostgreSQL. Change events ride on
// LISTEN/NOTIFY with a single listening connection fanning out to watchers.
type PostgresStore struct {
	pool   *pgxpool.Pool
	cancel context.CancelFunc

	mu       sync.Mutex
	watchers map[int]*pgWatcher
	nextID   int
}

// NewPostgresStore connects, ensures the schema, and starts the listener.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s := &PostgresStore{
		pool:     pool,
		cancel:   cancel,
		watchers: make(map[int]*pgWatcher),
	}
	go s.listen(listenCtx)
	return s, nil
}

func (s *PostgresStore) Get(ctx context.Context, path string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM huddle_kv WHERE path=$1`, path).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg get %s: %w", path, err)
	}
	return value, nil
}

func (s *PostgresStore) Put(ctx context.Context, path string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO huddle_kv (path, value) VALUES ($1, $2)
		ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, path, value)
	if err != nil {
		return fmt.Errorf("pg put %s: %w", path, err)
	}
	s.notify(ctx, Event{Path: path, Value: value})
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, path string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM huddle_kv WHERE path=$1`, path); err != nil {
		return fmt.Errorf("pg delete %s: %w", path, err)
	}
	s.notify(ctx, Event{Path: path, Deleted: true})
	return nil
}

func (s *PostgresStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT path, value FROM huddle_kv
		WHERE path LIKE $1 || '%'
		ORDER BY path ASC
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("pg list %s: %w", prefix, err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Path, &e.Value); err != nil {
			return nil, fmt.Errorf("pg list scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) Incr(ctx context.Context, path string) (int64, error) {
	var value int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO huddle_counters (path, value) VALUES ($1, 1)
		ON CONFLICT (path) DO UPDATE SET value = huddle_counters.value + 1
		RETURNING value
	`, path).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("pg incr %s: %w", path, err)
	}
	return value, nil
}

func (s *PostgresStore) Watch(ctx context.Context, prefix string, fn func(Event)) (CancelFunc, error) {
	w := &pgWatcher{
		prefix: prefix,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = w
	s.mu.Unlock()

	go func() {
		for {
			select {
			case event := <-w.events:
				fn(event)
			case <-w.done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
			close(w.done)
		})
	}
	return cancel, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.cancel()
	s.pool.Close()
	return nil
}

// notify publishes a change event. Best-effort, as with the Redis backend.
func (s *PostgresStore) notify(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if len(payload) > pgMaxNotifyPayload {
		payload, _ = json.Marshal(Event{Path: event.Path, Deleted: event.Deleted})
	}
	if _, err := s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, pgNotifyChannel, string(payload)); err != nil {
		log.Printf("storage: pg_notify failed for %s: %v", event.Path, err)
	}
}

// listen holds one dedicated connection on LISTEN and fans notifications out
// to registered watchers. Reconnects until the store is closed.
func (s *PostgresStore) listen(ctx context.Context) {
	for ctx.Err() == nil {
		if err := s.listenOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("storage: listener error, reconnecting: %v", err)
		}
	}
}

func (s *PostgresStore) listenOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `LISTEN `+pgNotifyChannel); err != nil {
		return err
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var event Event
		if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
			continue
		}
		s.dispatch(event)
	}
}

func (s *PostgresStore) dispatch(event Event) {
	s.mu.Lock()
	watchers := make([]*pgWatcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	for _, w := range watchers {
		if len(event.Path) < len(w.prefix) || event.Path[:len(w.prefix)] != w.prefix {
			continue
		}
		select {
		case w.events <- event:
		case <-w.done:
		default:
			// A stalled watcher must not hold up delivery to the others.
			// Drop for this watcher only; its consumers converge by
			// re-reading (roster snapshots) or reconnecting (streams).
			log.Printf("storage: watcher on %s fell behind, dropping event for %s", w.prefix, event.Path)
		}
	}
}
