package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Status is the lifecycle state of a scheduled email.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var (
	// ErrNotFound is returned for an unknown id.
	ErrNotFound = errors.New("scheduled email not found")

	// ErrNotPending is returned when cancelling an email that was already
	// sent, failed or cancelled.
	ErrNotPending = errors.New("scheduled email is not pending")
)

// Email is a one-shot send queued for later.
type Email struct {
	ID        string    `json:"id" db:"id"`
	Recipient string    `json:"recipient" db:"recipient"`
	Subject   string    `json:"subject" db:"subject"`
	Body      string    `json:"body" db:"body"`
	SendAt    time.Time `json:"send_at" db:"send_at"`
	Status    Status    `json:"status" db:"status"`
	Attempts  int       `json:"attempts" db:"attempts"`
	LastError string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Store keeps scheduled emails in a SQLite database.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// OpenStore opens (or creates) the database at path and applies pending
// migrations. Use ":memory:" for a throwaway store.
func OpenStore(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	current := 0

	var tables int
	err := s.db.Get(&tables,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tables > 0 {
		if err := s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// dbTime normalizes times so stored values compare correctly as text.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Create stores a new pending email and returns it with its id set.
func (s *Store) Create(ctx context.Context, e Email) (Email, error) {
	if strings.TrimSpace(e.Recipient) == "" {
		return Email{}, errors.New("recipient is required")
	}
	if e.SendAt.IsZero() {
		return Email{}, errors.New("send time is required")
	}

	now := dbTime(s.now())
	e.ID = uuid.NewString()
	e.Status = StatusPending
	e.Attempts = 0
	e.LastError = ""
	e.SendAt = dbTime(e.SendAt)
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO scheduled_emails (
			id, recipient, subject, body, send_at,
			status, attempts, last_error, created_at, updated_at
		) VALUES (
			:id, :recipient, :subject, :body, :send_at,
			:status, :attempts, :last_error, :created_at, :updated_at
		)`, e)
	if err != nil {
		return Email{}, fmt.Errorf("inserting scheduled email: %w", err)
	}
	return e, nil
}

// Get returns the email with id.
func (s *Store) Get(ctx context.Context, id string) (Email, error) {
	var e Email
	err := s.db.GetContext(ctx, &e, "SELECT * FROM scheduled_emails WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return Email{}, ErrNotFound
	}
	if err != nil {
		return Email{}, fmt.Errorf("getting scheduled email %s: %w", id, err)
	}
	return e, nil
}

// List returns pending emails ordered by send time, or every email when
// all is set.
func (s *Store) List(ctx context.Context, all bool) ([]Email, error) {
	query := "SELECT * FROM scheduled_emails"
	var args []interface{}
	if !all {
		query += " WHERE status = ?"
		args = append(args, StatusPending)
	}
	query += " ORDER BY send_at ASC, created_at ASC"

	var emails []Email
	if err := s.db.SelectContext(ctx, &emails, query, args...); err != nil {
		return nil, fmt.Errorf("listing scheduled emails: %w", err)
	}
	return emails, nil
}

// Due returns pending emails whose send time is at or before now.
func (s *Store) Due(ctx context.Context, now time.Time) ([]Email, error) {
	var emails []Email
	err := s.db.SelectContext(ctx, &emails,
		"SELECT * FROM scheduled_emails WHERE status = ? AND send_at <= ? ORDER BY send_at ASC",
		StatusPending, dbTime(now))
	if err != nil {
		return nil, fmt.Errorf("listing due emails: %w", err)
	}
	return emails, nil
}

// MarkSent records a successful send.
func (s *Store) MarkSent(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusSent, "", true)
}

// RecordFailure counts a failed attempt. The email stays pending until it
// has failed maxAttempts times. The resulting status is returned.
func (s *Store) RecordFailure(ctx context.Context, id string, sendErr error, maxAttempts int) (Status, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}

	status := StatusPending
	if e.Attempts+1 >= maxAttempts {
		status = StatusFailed
	}
	msg := ""
	if sendErr != nil {
		msg = sendErr.Error()
	}
	if err := s.setStatus(ctx, id, status, msg, true); err != nil {
		return "", err
	}
	return status, nil
}

// Cancel stops a pending email from being sent.
func (s *Store) Cancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE scheduled_emails SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		StatusCancelled, dbTime(s.now()), id, StatusPending)
	if err != nil {
		return fmt.Errorf("cancelling scheduled email %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancelling scheduled email %s: %w", id, err)
	}
	if n == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrNotPending
	}
	return nil
}

func (s *Store) setStatus(ctx context.Context, id string, status Status, lastError string, attempt bool) error {
	inc := 0
	if attempt {
		inc = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_emails
		SET status = ?, attempts = attempts + ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		status, inc, lastError, dbTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("updating scheduled email %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
