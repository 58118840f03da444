package storage

import (
	"context"
	"time"

	"github.com/rhuss/byok/pkg/api"
)

// NewThread holds the caller supplied fields of a thread.
type NewThread struct {
	OwnerID  string
	Title    string
	Metadata map[string]any
}

// NewMessage holds the fields of a message to append.
type NewMessage struct {
	Role     api.MessageRole
	Content  string
	Status   api.MessageStatus
	Metadata api.MessageMetadata
}

// MessageUpdate is a partial update. Nil fields are left unchanged;
// Metadata is merged with api.MergeMetadata.
type MessageUpdate struct {
	Content  *string
	Status   *api.MessageStatus
	Metadata *api.MessageMetadata
}

// ListOptions controls ListThreads.
type ListOptions struct {
	// Limit caps the result. Zero means DefaultListLimit.
	Limit int
}

// DefaultListLimit is used when ListOptions.Limit is zero.
const DefaultListLimit = 50

// ThreadStore persists threads and their messages. Threads returned by
// ListThreads carry no messages.
type ThreadStore interface {
	CreateThread(ctx context.Context, t NewThread) (*api.Thread, error)
	GetThread(ctx context.Context, id string) (*api.Thread, error)
	ListThreads(ctx context.Context, ownerID string, opts ListOptions) ([]api.Thread, error)
	DeleteThread(ctx context.Context, id string) error
	AddMessage(ctx context.Context, threadID string, m NewMessage) (*api.Message, error)
	UpdateMessage(ctx context.Context, threadID, messageID string, u MessageUpdate) (*api.Thread, error)
}

// Credential is one stored, already encrypted vendor key.
type Credential struct {
	UserID     string
	Provider   api.ProviderID
	Ciphertext string
	// Hint is a displayable suffix of the plaintext key.
	Hint      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CredentialStore persists encrypted credentials keyed by (user, provider).
type CredentialStore interface {
	PutCredential(ctx context.Context, c Credential) error
	GetCredential(ctx context.Context, userID string, provider api.ProviderID) (*Credential, error)
	DeleteCredential(ctx context.Context, userID string, provider api.ProviderID) error
	ListCredentials(ctx context.Context, userID string) ([]Credential, error)
}

// Store is a complete backend.
type Store interface {
	ThreadStore
	CredentialStore
	HealthCheck(ctx context.Context) error
	Close() error
}
