// Package postgres provides a PostgreSQL implementation of storage.Store.
// It uses pgx/v5 for connection pooling and JSONB for metadata columns.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/debug"
	"github.com/rhuss/byok/pkg/storage"
)

// Store is a PostgreSQL-backed storage.Store.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Ensure Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, now: time.Now}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// CreateThread inserts a new, empty thread.
func (s *Store) CreateThread(ctx context.Context, t storage.NewThread) (*api.Thread, error) {
	metaJSON, err := marshalOptional(t.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling thread metadata: %w", err)
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

	_, err = s.pool.Exec(ctx, `
		INSERT INTO threads (id, owner_id, title, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, th.ID, th.OwnerID, th.Title, metaJSON, now)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, storage.ErrConflict
		}
		return nil, fmt.Errorf("inserting thread: %w", err)
	}

	debug.Log("storage", "thread created", "thread_id", th.ID, "backend", "postgres")
	return th, nil
}

// GetThread loads a thread with its messages in creation order.
func (s *Store) GetThread(ctx context.Context, id string) (*api.Thread, error) {
	return loadThread(ctx, s.pool, id)
}

// ListThreads returns the owner's threads, most recently updated first,
// without messages.
func (s *Store) ListThreads(ctx context.Context, ownerID string, opts storage.ListOptions) ([]api.Thread, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, title, metadata, created_at, updated_at
		FROM threads
		WHERE owner_id = $1
		ORDER BY updated_at DESC, id DESC
		LIMIT $2
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	return out, nil
}

// DeleteThread removes a thread; its messages are removed by cascade.
func (s *Store) DeleteThread(ctx context.Context, id string) error {
	query, args := scoped(ctx, "DELETE FROM threads WHERE id = $1", []any{id})

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting thread: %w", err)
	}
	if result.RowsAffected() == 0 {
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

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockThread(ctx, tx, threadID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO messages (id, thread_id, role, content, status, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, msg.ID, threadID, string(msg.Role), msg.Content, string(msg.Status), metaJSON, now); err != nil {
			if isDuplicateKey(err) {
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

// UpdateMessage applies a partial update to one message. The message row
// is locked for the duration of the transaction, so concurrent updates of
// the same message serialize instead of overwriting each other.
func (s *Store) UpdateMessage(ctx context.Context, threadID, messageID string, u storage.MessageUpdate) (*api.Thread, error) {
	var th *api.Thread

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockThread(ctx, tx, threadID); err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			SELECT id, thread_id, role, content, status, metadata, created_at
			FROM messages
			WHERE thread_id = $1 AND id = $2
			FOR UPDATE
		`, threadID, messageID)
		msg, err := scanMessage(row)
		if errors.Is(err, pgx.ErrNoRows) {
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
		if _, err := tx.Exec(ctx, `
			UPDATE messages SET content = $1, status = $2, metadata = $3
			WHERE id = $4
		`, msg.Content, string(msg.Status), metaJSON, messageID); err != nil {
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
	now := s.now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO credentials (user_id, provider, ciphertext, hint, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id, provider) DO UPDATE
		SET ciphertext = EXCLUDED.ciphertext, hint = EXCLUDED.hint, updated_at = EXCLUDED.updated_at
	`, c.UserID, string(c.Provider), c.Ciphertext, c.Hint, now)
	if err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}
	return nil
}

// GetCredential returns the credential for (userID, provider).
func (s *Store) GetCredential(ctx context.Context, userID string, provider api.ProviderID) (*storage.Credential, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, provider, ciphertext, hint, created_at, updated_at
		FROM credentials
		WHERE user_id = $1 AND provider = $2
	`, userID, string(provider))

	c, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	return c, nil
}

// DeleteCredential removes the credential for (userID, provider).
func (s *Store) DeleteCredential(ctx context.Context, userID string, provider api.ProviderID) error {
	result, err := s.pool.Exec(ctx,
		"DELETE FROM credentials WHERE user_id = $1 AND provider = $2",
		userID, string(provider))
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListCredentials returns the user's credentials sorted by provider.
func (s *Store) ListCredentials(ctx context.Context, userID string) ([]storage.Credential, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, provider, ciphertext, hint, created_at, updated_at
		FROM credentials
		WHERE user_id = $1
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
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// scoped appends the owner filter of ctx to a query whose last
// placeholder is $len(args).
func scoped(ctx context.Context, query string, args []any) (string, []any) {
	if owner := storage.GetOwner(ctx); owner != "" {
		query += fmt.Sprintf(" AND owner_id = $%d", len(args)+1)
		args = append(args, owner)
	}
	return query, args
}

// lockThread takes a row lock on the thread, honoring owner scoping.
func lockThread(ctx context.Context, tx pgx.Tx, threadID string) error {
	query, args := scoped(ctx, "SELECT id FROM threads WHERE id = $1", []any{threadID})

	var id string
	err := tx.QueryRow(ctx, query+" FOR UPDATE", args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("thread %s: %w", threadID, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("locking thread: %w", err)
	}
	return nil
}

// touchThread moves updated_at forward, never backwards.
func touchThread(ctx context.Context, tx pgx.Tx, threadID string, now time.Time) error {
	if _, err := tx.Exec(ctx,
		"UPDATE threads SET updated_at = GREATEST(updated_at, $1) WHERE id = $2",
		now, threadID,
	); err != nil {
		return fmt.Errorf("touching thread: %w", err)
	}
	return nil
}

func loadThread(ctx context.Context, q querier, id string) (*api.Thread, error) {
	query, args := scoped(ctx, `
		SELECT id, owner_id, title, metadata, created_at, updated_at
		FROM threads
		WHERE id = $1`, []any{id})

	th, err := scanThread(q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("thread %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, thread_id, role, content, status, metadata, created_at
		FROM messages
		WHERE thread_id = $1
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

func scanThread(row pgx.Row) (*api.Thread, error) {
	var th api.Thread
	var metaJSON []byte
	if err := row.Scan(&th.ID, &th.OwnerID, &th.Title, &metaJSON, &th.CreatedAt, &th.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning thread: %w", err)
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &th.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling thread metadata: %w", err)
		}
	}
	th.CreatedAt = th.CreatedAt.UTC()
	th.UpdatedAt = th.UpdatedAt.UTC()
	return &th, nil
}

func scanMessage(row pgx.Row) (*api.Message, error) {
	var msg api.Message
	var role, status string
	var metaJSON []byte
	if err := row.Scan(&msg.ID, &msg.ThreadID, &role, &msg.Content, &status, &metaJSON, &msg.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning message: %w", err)
	}
	msg.Role = api.MessageRole(role)
	msg.Status = api.MessageStatus(status)
	msg.CreatedAt = msg.CreatedAt.UTC()
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling message metadata: %w", err)
		}
	}
	return &msg, nil
}

func scanCredential(row pgx.Row) (*storage.Credential, error) {
	var c storage.Credential
	var provider string
	if err := row.Scan(&c.UserID, &provider, &c.Ciphertext, &c.Hint, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Provider = api.ProviderID(provider)
	return &c, nil
}

// marshalOptional encodes m, returning nil for an empty map so the
// nullable JSONB column stays NULL.
func marshalOptional(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

// isDuplicateKey reports whether err is a PostgreSQL unique violation.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
