package profile

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"account-portal/internal/domain"
	"account-portal/internal/repository"
)

// ErrNotFound indica que el documento no existe.
var ErrNotFound = errors.New("document not found")

// Document es un registro plano clave-valor.
type Document map[string]any

// Store es el contrato del almacén de documentos de perfil.
type Store interface {
	Get(ctx context.Context, collection, key string) (Document, error)
	Upsert(ctx context.Context, collection, key string, fields map[string]any, merge bool) error
}

// StoreError agrupa fallas de lectura/escritura del almacén.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("profile store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// DocumentStore implementa Store sobre un DocumentRepository (Postgres JSONB).
type DocumentStore struct {
	logger *zap.Logger
	repo   repository.DocumentRepository
}

func NewDocumentStore(logger *zap.Logger, repo repository.DocumentRepository) *DocumentStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentStore{logger: logger, repo: repo}
}

func (s *DocumentStore) Get(ctx context.Context, collection, key string) (Document, error) {
	data, err := s.repo.Get(ctx, collection, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		s.logger.Error("document read failed", zap.String("collection", collection), zap.String("key", key), zap.Error(err))
		return nil, &StoreError{Op: "get", Err: err}
	}
	return Document(data), nil
}

func (s *DocumentStore) Upsert(ctx context.Context, collection, key string, fields map[string]any, merge bool) error {
	if err := s.repo.Upsert(ctx, collection, key, fields, merge); err != nil {
		s.logger.Error("document write failed", zap.String("collection", collection), zap.String("key", key), zap.Bool("merge", merge), zap.Error(err))
		return &StoreError{Op: "upsert", Err: err}
	}
	return nil
}

// MemoryStore es un Store en memoria (modo efímero de la CLI).
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]Document)}
}

func (s *MemoryStore) Get(_ context.Context, collection, key string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return maps.Clone(doc), nil
}

func (s *MemoryStore) Upsert(_ context.Context, collection, key string, fields map[string]any, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.docs[collection]
	if !ok {
		col = make(map[string]Document)
		s.docs[collection] = col
	}
	doc, exists := col[key]
	if !merge || !exists {
		doc = make(Document, len(fields))
	}
	for k, v := range fields {
		doc[k] = v
	}
	col[key] = doc
	return nil
}

// LoadUserProfile lee el perfil users/{userID}.
func LoadUserProfile(ctx context.Context, store Store, userID string) (domain.UserProfile, error) {
	doc, err := store.Get(ctx, domain.UsersCollection, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return domain.ProfileFromFields(doc), nil
}

// SaveUserProfile escribe el perfil users/{userID}.
func SaveUserProfile(ctx context.Context, store Store, userID string, p domain.UserProfile, merge bool) error {
	return store.Upsert(ctx, domain.UsersCollection, userID, p.Fields(), merge)
}

var (
	_ Store = (*DocumentStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
