// Package memory provides an in-memory storage.Store for tests and
// single-process deployments. Data is lost when the process restarts.
// Optional LRU eviction bounds the number of threads kept.
package memory

import (
	"container/list"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/storage"
)

// entry holds a stored thread and its LRU position.
type entry struct {
	thread  *api.Thread
	lruElem *list.Element
}

// Store is an in-memory storage.Store with optional LRU eviction of threads.
type Store struct {
	mu          sync.RWMutex
	threads     map[string]*entry
	lruList     *list.List // front = most recently used
	maxSize     int        // 0 = unlimited
	credentials map[string]storage.Credential

	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New creates an in-memory store. If maxSize is 0 the store grows without
// limit; otherwise the least recently used thread is evicted at capacity.
func New(maxSize int) *Store {
	return &Store{
		threads:     make(map[string]*entry),
		lruList:     list.New(),
		maxSize:     maxSize,
		credentials: make(map[string]storage.Credential),
		now:         time.Now,
	}
}

// CreateThread stores a new, empty thread.
func (s *Store) CreateThread(_ context.Context, t storage.NewThread) (*api.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

	if s.maxSize > 0 && len(s.threads) >= s.maxSize {
		s.evictOldest()
	}
	s.threads[th.ID] = &entry{thread: th, lruElem: s.lruList.PushFront(th.ID)}

	return cloneThread(th, true), nil
}

// GetThread returns a copy of the thread with all messages.
func (s *Store) GetThread(ctx context.Context, id string) (*api.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.visible(ctx, id)
	if err != nil {
		return nil, err
	}
	s.lruList.MoveToFront(e.lruElem)
	return cloneThread(e.thread, true), nil
}

// ListThreads returns the owner's threads, most recently updated first,
// without messages.
func (s *Store) ListThreads(_ context.Context, ownerID string, opts storage.ListOptions) ([]api.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []api.Thread
	for _, e := range s.threads {
		if e.thread.OwnerID != ownerID {
			continue
		}
		out = append(out, *cloneThread(e.thread, false))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if limit := opts.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteThread removes a thread and its messages.
func (s *Store) DeleteThread(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.visible(ctx, id)
	if err != nil {
		return err
	}
	s.lruList.Remove(e.lruElem)
	delete(s.threads, id)
	return nil
}

// AddMessage appends a message and bumps the thread's updated-at.
func (s *Store) AddMessage(ctx context.Context, threadID string, m storage.NewMessage) (*api.Message, error) {
	if err := storage.ValidateNewMessage(m); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.visible(ctx, threadID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	msg := api.Message{
		ID:        api.NewMessageID(),
		ThreadID:  threadID,
		Role:      m.Role,
		Content:   m.Content,
		Status:    m.Status,
		Metadata:  api.MergeMetadata(api.MessageMetadata{}, m.Metadata),
		CreatedAt: now,
	}
	e.thread.Messages = append(e.thread.Messages, msg)
	e.thread.UpdatedAt = storage.Touch(e.thread.UpdatedAt, now)
	s.lruList.MoveToFront(e.lruElem)

	out := msg
	return &out, nil
}

// UpdateMessage applies a partial update to one message under the store
// lock and returns the updated thread.
func (s *Store) UpdateMessage(ctx context.Context, threadID, messageID string, u storage.MessageUpdate) (*api.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.visible(ctx, threadID)
	if err != nil {
		return nil, err
	}

	msg := e.thread.Message(messageID)
	if msg == nil {
		return nil, fmt.Errorf("message %s: %w", messageID, storage.ErrNotFound)
	}

	updated := *msg
	if err := storage.ApplyUpdate(&updated, u); err != nil {
		return nil, err
	}
	*msg = updated
	e.thread.UpdatedAt = storage.Touch(e.thread.UpdatedAt, s.now().UTC())

	return cloneThread(e.thread, true), nil
}

// PutCredential inserts or replaces a credential.
func (s *Store) PutCredential(_ context.Context, c storage.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := credentialKey(c.UserID, c.Provider)
	now := s.now().UTC()
	if prev, ok := s.credentials[key]; ok {
		c.CreatedAt = prev.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.credentials[key] = c
	return nil
}

// GetCredential returns the credential for (userID, provider).
func (s *Store) GetCredential(_ context.Context, userID string, provider api.ProviderID) (*storage.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credentials[credentialKey(userID, provider)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

// DeleteCredential removes the credential for (userID, provider).
func (s *Store) DeleteCredential(_ context.Context, userID string, provider api.ProviderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := credentialKey(userID, provider)
	if _, ok := s.credentials[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.credentials, key)
	return nil
}

// ListCredentials returns the user's credentials sorted by provider.
func (s *Store) ListCredentials(_ context.Context, userID string) ([]storage.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.Credential
	for _, c := range s.credentials {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// visible looks up a thread honoring owner scoping. Must be called with
// s.mu held.
func (s *Store) visible(ctx context.Context, id string) (*entry, error) {
	e, ok := s.threads[id]
	if !ok || !storage.Visible(ctx, e.thread.OwnerID) {
		return nil, fmt.Errorf("thread %s: %w", id, storage.ErrNotFound)
	}
	return e, nil
}

// evictOldest removes the least recently used thread.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.threads, id)
}

func credentialKey(userID string, provider api.ProviderID) string {
	return userID + "\x00" + string(provider)
}

// cloneThread copies t so callers never share memory with the store.
func cloneThread(t *api.Thread, withMessages bool) *api.Thread {
	out := *t
	if t.Metadata != nil {
		out.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	out.Messages = nil
	if withMessages {
		out.Messages = make([]api.Message, len(t.Messages))
		for i, m := range t.Messages {
			out.Messages[i] = m
			out.Messages[i].Metadata = api.MergeMetadata(api.MessageMetadata{}, m.Metadata)
		}
	}
	return &out
}
