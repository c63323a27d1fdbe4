package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"l2writer/internal/notify"
)

// ErrNotFound is returned when an entry id does not exist.
var ErrNotFound = errors.New("outbox entry not found")

// Entry is one journaled notification.
type Entry struct {
	ID          int64
	MessageID   string
	BatchID     string
	Topic       string
	Type        string
	Sender      string
	Payload     string
	MessageTime time.Time
	CreatedAt   time.Time
	SentAt      *time.Time
	Attempts    int
	LastError   string
}

// Sent reports whether the entry has been delivered.
func (e Entry) Sent() bool { return e.SentAt != nil }

// Message rebuilds the notification carried by the entry.
func (e Entry) Message() (notify.Message, error) {
	m := notify.Message{
		ID:     e.MessageID,
		Topic:  e.Topic,
		Type:   e.Type,
		Sender: e.Sender,
		Time:   e.MessageTime,
	}
	if err := json.Unmarshal([]byte(e.Payload), &m.Data); err != nil {
		return notify.Message{}, fmt.Errorf("decode payload of entry %d: %w", e.ID, err)
	}
	return m, nil
}

// Store manages the journal backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database and applies migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure outbox directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record journals the messages of one batch in a single transaction and returns
// their entry ids in the same order.
func (s *Store) Record(ctx context.Context, batchID string, msgs []notify.Message) ([]int64, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin record tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := formatTime(time.Now())
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		payload, err := json.Marshal(m.Data)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO messages (message_id, batch_id, topic, type, sender, payload, message_time, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, batchID, m.Topic, m.Type, nullableString(m.Sender), string(payload), formatTime(m.Time), now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("read message id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit record tx: %w", err)
	}
	return ids, nil
}

// MarkSent records successful delivery.
func (s *Store) MarkSent(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET sent_at = ?, attempts = attempts + 1, last_error = NULL WHERE id = ?`,
		formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return requireRow(res)
}

// MarkFailed records a failed delivery attempt.
func (s *Store) MarkFailed(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		nullableString(msg), id,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireRow(res)
}

// Pending returns unsent entries in recording order. limit <= 0 returns all.
func (s *Store) Pending(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM messages WHERE sent_at IS NULL ORDER BY id`
	return s.query(ctx, query, limit)
}

// List returns entries newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, includeSent bool, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM messages`
	if !includeSent {
		query += ` WHERE sent_at IS NULL`
	}
	query += ` ORDER BY id DESC`
	return s.query(ctx, query, limit)
}

// Get returns one entry.
func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM messages WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return entry, err
}

// Prune deletes sent entries delivered before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE sent_at IS NOT NULL AND sent_at < ?`,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("prune outbox: %w", err)
	}
	return res.RowsAffected()
}

const entryColumns = `id, message_id, batch_id, topic, type, sender, payload, message_time, created_at, sent_at, attempts, last_error`

func (s *Store) query(ctx context.Context, query string, limit int) ([]Entry, error) {
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry       Entry
		sender      sql.NullString
		messageTime string
		createdAt   string
		sentAt      sql.NullString
		lastError   sql.NullString
	)
	if err := scanner.Scan(
		&entry.ID, &entry.MessageID, &entry.BatchID, &entry.Topic, &entry.Type, &sender,
		&entry.Payload, &messageTime, &createdAt, &sentAt, &entry.Attempts, &lastError,
	); err != nil {
		return Entry{}, err
	}
	entry.Sender = sender.String
	entry.LastError = lastError.String
	if t, err := parseTimeString(messageTime); err == nil {
		entry.MessageTime = t
	}
	if t, err := parseTimeString(createdAt); err == nil {
		entry.CreatedAt = t
	}
	if sentAt.Valid {
		if t, err := parseTimeString(sentAt.String); err == nil {
			entry.SentAt = &t
		}
	}
	return entry, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

// timeLayout has fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
