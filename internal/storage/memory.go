package storage

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStorage is an in-process Storage implementation used for single-node
// deployments and tests.
type MemoryStorage struct {
	mu            sync.RWMutex
	tenants       map[string]*Tenant
	tenantsBySlug map[string]string
	apiKeys       map[string]*APIKey
	users         map[string]*User
	usersByEmail  map[string]string
	memberships   map[string]map[string]*Membership // userID -> tenantID -> membership
	webhookEvents map[string]*WebhookEvent          // provider\x00eventID
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tenants:       make(map[string]*Tenant),
		tenantsBySlug: make(map[string]string),
		apiKeys:       make(map[string]*APIKey),
		users:         make(map[string]*User),
		usersByEmail:  make(map[string]string),
		memberships:   make(map[string]map[string]*Membership),
		webhookEvents: make(map[string]*WebhookEvent),
	}
}

func (s *MemoryStorage) CreateTenant(_ context.Context, tenant *Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = now
	}
	tenant.UpdatedAt = now

	copied := *tenant
	s.tenants[tenant.ID] = &copied
	s.tenantsBySlug[strings.ToLower(tenant.Slug)] = tenant.ID
	return nil
}

func (s *MemoryStorage) GetTenant(_ context.Context, id string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *tenant
	return &copied, nil
}

func (s *MemoryStorage) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	s.mu.RLock()
	id, ok := s.tenantsBySlug[strings.ToLower(slug)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.GetTenant(ctx, id)
}

func (s *MemoryStorage) UpdateTenantStatus(_ context.Context, id string, status TenantStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.tenants[id]
	if !ok {
		return ErrNotFound
	}
	tenant.Status = status
	tenant.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) CreateAPIKey(_ context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now()
	}
	copied := *key
	s.apiKeys[key.ID] = &copied
	return nil
}

func (s *MemoryStorage) GetAPIKey(_ context.Context, id string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.apiKeys[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *key
	return &copied, nil
}

func (s *MemoryStorage) RevokeAPIKey(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.apiKeys[id]
	if !ok {
		return ErrNotFound
	}
	key.Active = false
	return nil
}

func (s *MemoryStorage) CreateUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	copied := *user
	s.users[user.ID] = &copied
	s.usersByEmail[strings.ToLower(user.Email)] = user.ID
	return nil
}

func (s *MemoryStorage) GetUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s.users[id]
	return &copied, nil
}

func (s *MemoryStorage) AddMembership(_ context.Context, m *Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.memberships[m.UserID] == nil {
		s.memberships[m.UserID] = make(map[string]*Membership)
	}
	copied := *m
	s.memberships[m.UserID][m.TenantID] = &copied
	return nil
}

func (s *MemoryStorage) UserHasAccessToTenant(_ context.Context, userID, tenantID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.memberships[userID][tenantID]
	return ok, nil
}

func webhookKey(provider, eventID string) string {
	return provider + "\x00" + eventID
}

func (s *MemoryStorage) GetWebhookEvent(_ context.Context, provider, eventID string) (*WebhookEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.webhookEvents[webhookKey(provider, eventID)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *event
	return &copied, nil
}

func (s *MemoryStorage) RecordWebhookEvent(_ context.Context, event *WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now()
	}
	copied := *event
	s.webhookEvents[webhookKey(event.Provider, event.EventID)] = &copied
	return nil
}

func (s *MemoryStorage) Health(context.Context) error { return nil }

func (s *MemoryStorage) Close() error { return nil }

var _ Storage = (*MemoryStorage)(nil)
