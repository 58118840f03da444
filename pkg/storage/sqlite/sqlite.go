// Package sqlite provides a single-node storage.Store on SQLite using the
// pure-Go modernc.org/sqlite driver. Timestamps are stored as Unix
// nanoseconds and metadata as JSON text.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/debug"
	"github.com/rhuss/byok/pkg/storage"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is a SQLite-backed storage.Store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Open opens (or creates) the database at path, applies pragmas for WAL,
// foreign keys and a busy timeout, and runs pending migrations. The parent
// directory must exist.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != MemoryPath {
		dir := filepath.Dir(path)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return nil, fmt.Errorf("sqlite: parent directory %q does not exist", dir)
		}
	}

	// Write transactions take the lock up front so two writers never
	// deadlock on a read-to-write upgrade.
	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	if path == MemoryPath {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping %q: %w", path, err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// CreateThread inserts a new, empty thread.
func (s *Store) CreateThread(ctx context.Context, t storage.NewThread) (*api.Thread, error) {
	var metaJSON *string
	if len(t.Metadata) > 0 {
		b, err := json.Marshal(t.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshaling thread metadata: %w", err)
		}
		v := string(b)
		metaJSON = &v
	}

	now := s.now().UTC()
	th := &api.Thread{
		ID:        api.NewThreadID(),
		OwnerID:   t.OwnerID,
		Title:     t.Title,
		Metadata:  t.Metadata,
		Messages:  []api.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (id, owner_id, title, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, th.ID, th.OwnerID, th.Title, metaJSON, now.UnixNano(), now.UnixNano())
	if err != nil {
		if isConstraint(err) {
			return nil, storage.ErrConflict
		}
		return nil, fmt.Errorf("inserting thread: %w", err)
	}

	debug.Log("storage", "thread created", "thread_id", th.ID, "backend", "sqlite")
	return th, nil
}

// GetThread loads a thread with its messages in creation order.
func (s *Store) GetThread(ctx context.Context, id string) (*api.Thread, error) {
	return loadThread(ctx, s.db, id)
}

// ListThreads returns the owner's threads, most recently updated first,
// without messages.
func (s *Store) ListThreads(ctx context.Context, ownerID string, opts storage.ListOptions) ([]api.Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, metadata, created_at, updated_at
		FROM threads
		WHERE owner_id = ?
		ORDER BY updated_at DESC, id DESC
		LIMIT ?
	`, ownerID, opts.EffectiveLimit())
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	defer rows.Close()

	var out []api.Thread
	for rows.Next() {
		th, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *th)
	}
	return out, rows.Err()
}

// DeleteThread removes a thread; its messages are removed by cascade.
func (s *Store) DeleteThread(ctx context.Context, id string) error {
	query, args := scoped(ctx, "DELETE FROM threads WHERE id = ?", []any{id})

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting thread: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AddMessage appends a message and bumps the thread's updated-at in one
// transaction.
func (s *Store) AddMessage(ctx context.Context, threadID string, m storage.NewMessage) (*api.Message, error) {
	if err := storage.ValidateNewMessage(m); err != nil {
		return nil, err
	}

	metaJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling message metadata: %w", err)
	}

	now := s.now().UTC()
	msg := &api.Message{
		ID:        api.NewMessageID(),
		ThreadID:  threadID,
		Role:      m.Role,
		Content:   m.Content,
		Status:    m.Status,
		Metadata:  m.Metadata,
		CreatedAt: now,
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkThread(ctx, tx, threadID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, thread_id, role, content, status, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, msg.ID, threadID, string(msg.Role), msg.Content, string(msg.Status), string(metaJSON), now.UnixNano()); err != nil {
			if isConstraint(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("inserting message: %w", err)
		}
		return touchThread(ctx, tx, threadID, now)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// UpdateMessage applies a partial update to one message inside an
// immediate transaction.
func (s *Store) UpdateMessage(ctx context.Context, threadID, messageID string, u storage.MessageUpdate) (*api.Thread, error) {
	var th *api.Thread

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkThread(ctx, tx, threadID); err != nil {
			return err
		}

		msg, err := scanMessage(tx.QueryRowContext(ctx, `
			SELECT id, thread_id, role, content, status, metadata, created_at
			FROM messages
			WHERE thread_id = ? AND id = ?
		`, threadID, messageID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("message %s: %w", messageID, storage.ErrNotFound)
		}
		if err != nil {
			return err
		}

		if err := storage.ApplyUpdate(msg, u); err != nil {
			return err
		}

		metaJSON, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling message metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE messages SET content = ?, status = ?, metadata = ? WHERE id = ?",
			msg.Content, string(msg.Status), string(metaJSON), messageID,
		); err != nil {
			return fmt.Errorf("updating message: %w", err)
		}

		if err := touchThread(ctx, tx, threadID, s.now().UTC()); err != nil {
			return err
		}

		th, err = loadThread(ctx, tx, threadID)
		return err
	})
	if err != nil {
		return nil, err
	}

	debug.Trace("storage", "message updated", "thread_id", threadID, "message_id", messageID)
	return th, nil
}

// PutCredential inserts or replaces a credential, keeping the original
// creation time on replace.
func (s *Store) PutCredential(ctx context.Context, c storage.Credential) error {
	now := s.now().UTC().UnixNano()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (user_id, provider, ciphertext, hint, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider) DO UPDATE
		SET ciphertext = excluded.ciphertext, hint = excluded.hint, updated_at = excluded.updated_at
	`, c.UserID, string(c.Provider), c.Ciphertext, c.Hint, now, now)
	if err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}
	return nil
}

// GetCredential returns the credential for (userID, provider).
func (s *Store) GetCredential(ctx context.Context, userID string, provider api.ProviderID) (*storage.Credential, error) {
	c, err := scanCredential(s.db.QueryRowContext(ctx, `
		SELECT user_id, provider, ciphertext, hint, created_at, updated_at
		FROM credentials
		WHERE user_id = ? AND provider = ?
	`, userID, string(provider)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	return c, nil
}

// DeleteCredential removes the credential for (userID, provider).
func (s *Store) DeleteCredential(ctx context.Context, userID string, provider api.ProviderID) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM credentials WHERE user_id = ? AND provider = ?", userID, string(provider))
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListCredentials returns the user's credentials sorted by provider.
func (s *Store) ListCredentials(ctx context.Context, userID string) ([]storage.Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, provider, ciphertext, hint, created_at, updated_at
		FROM credentials
		WHERE user_id = ?
		ORDER BY provider
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	var out []storage.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scoped(ctx context.Context, query string, args []any) (string, []any) {
	if owner := storage.GetOwner(ctx); owner != "" {
		query += " AND owner_id = ?"
		args = append(args, owner)
	}
	return query, args
}

func checkThread(ctx context.Context, tx *sql.Tx, threadID string) error {
	query, args := scoped(ctx, "SELECT id FROM threads WHERE id = ?", []any{threadID})

	var id string
	err := tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("thread %s: %w", threadID, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking thread: %w", err)
	}
	return nil
}

// touchThread moves updated_at forward, never backwards.
func touchThread(ctx context.Context, tx *sql.Tx, threadID string, now time.Time) error {
	if _, err := tx.ExecContext(ctx,
		"UPDATE threads SET updated_at = MAX(updated_at, ?) WHERE id = ?",
		now.UnixNano(), threadID,
	); err != nil {
		return fmt.Errorf("touching thread: %w", err)
	}
	return nil
}

func loadThread(ctx context.Context, q queryer, id string) (*api.Thread, error) {
	query, args := scoped(ctx, `
		SELECT id, owner_id, title, metadata, created_at, updated_at
		FROM threads
		WHERE id = ?`, []any{id})

	th, err := scanThread(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("thread %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, thread_id, role, content, status, metadata, created_at
		FROM messages
		WHERE thread_id = ?
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	th.Messages = []api.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		th.Messages = append(th.Messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	return th, nil
}

func scanThread(row rowScanner) (*api.Thread, error) {
	var th api.Thread
	var metaJSON sql.NullString
	var created, updated int64
	if err := row.Scan(&th.ID, &th.OwnerID, &th.Title, &metaJSON, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning thread: %w", err)
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &th.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling thread metadata: %w", err)
		}
	}
	th.CreatedAt = time.Unix(0, created).UTC()
	th.UpdatedAt = time.Unix(0, updated).UTC()
	return &th, nil
}

func scanMessage(row rowScanner) (*api.Message, error) {
	var msg api.Message
	var role, status, metaJSON string
	var created int64
	if err := row.Scan(&msg.ID, &msg.ThreadID, &role, &msg.Content, &status, &metaJSON, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning message: %w", err)
	}
	msg.Role = api.MessageRole(role)
	msg.Status = api.MessageStatus(status)
	msg.CreatedAt = time.Unix(0, created).UTC()
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling message metadata: %w", err)
		}
	}
	return &msg, nil
}

func scanCredential(row rowScanner) (*storage.Credential, error) {
	var c storage.Credential
	var provider string
	var created, updated int64
	if err := row.Scan(&c.UserID, &provider, &c.Ciphertext, &c.Hint, &created, &updated); err != nil {
		return nil, err
	}
	c.Provider = api.ProviderID(provider)
	c.CreatedAt = time.Unix(0, created).UTC()
	c.UpdatedAt = time.Unix(0, updated).UTC()
	return &c, nil
}

// isConstraint reports whether err is a primary key or unique violation.
func isConstraint(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
