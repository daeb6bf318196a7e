package digest

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one recorded digest send.
type Entry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Fingerprint string    `json:"fingerprint"`
	Items       int       `json:"items"`
	SentAt      time.Time `json:"sentAt"`
}

// Ledger remembers which digests went out.
type Ledger interface {
	Recent(ctx context.Context, userID, fingerprint string, since time.Time) (*Entry, error)
	Record(ctx context.Context, e Entry) (Entry, error)
	List(ctx context.Context, userID string, limit int) ([]Entry, error)
}

// Repository persists the ledger in the digest_log table. Queries use $n
// placeholders, which both pgx and go-sqlite3 accept.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Recent returns the newest send of fingerprint to userID at or after since.
func (r *Repository) Recent(ctx context.Context, userID, fingerprint string, since time.Time) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, fingerprint, items, sent_at
		FROM digest_log
		WHERE user_id = $1 AND fingerprint = $2 AND sent_at >= $3
		ORDER BY sent_at DESC
		LIMIT 1
	`, userID, fingerprint, since.UTC())
	var e Entry
	if err := row.Scan(&e.ID, &e.UserID, &e.Fingerprint, &e.Items, &e.SentAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// Record writes a send.
func (r *Repository) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.SentAt.IsZero() {
		e.SentAt = time.Now()
	}
	e.SentAt = e.SentAt.UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO digest_log (id, user_id, fingerprint, items, sent_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.UserID, e.Fingerprint, e.Items, e.SentAt)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// List returns the latest sends to userID, newest first.
func (r *Repository) List(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, fingerprint, items, sent_at
		FROM digest_log
		WHERE user_id = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Fingerprint, &e.Items, &e.SentAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// MemoryLedger keeps the ledger in process memory.
type MemoryLedger struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryLedger() *MemoryLedger { return &MemoryLedger{} }

func (m *MemoryLedger) Recent(_ context.Context, userID, fingerprint string, since time.Time) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Entry
	for i := range m.entries {
		e := m.entries[i]
		if e.UserID != userID || e.Fingerprint != fingerprint || e.SentAt.Before(since) {
			continue
		}
		if best == nil || e.SentAt.After(best.SentAt) {
			best = &e
		}
	}
	return best, nil
}

func (m *MemoryLedger) Record(_ context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.SentAt.IsZero() {
		e.SentAt = time.Now()
	}
	e.SentAt = e.SentAt.UTC()
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return e, nil
}

func (m *MemoryLedger) List(_ context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.Lock()
	res := []Entry{}
	for _, e := range m.entries {
		if e.UserID == userID {
			res = append(res, e)
		}
	}
	m.mu.Unlock()
	sort.SliceStable(res, func(i, j int) bool { return res[i].SentAt.After(res[j].SentAt) })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}
