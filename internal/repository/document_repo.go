package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentRepository guarda documentos JSON planos por colección y clave.
type DocumentRepository interface {
	Get(ctx context.Context, collection, key string) (map[string]any, error)
	Upsert(ctx context.Context, collection, key string, fields map[string]any, merge bool) error
}

type PgDocumentRepository struct {
	pool *pgxpool.Pool
}

func NewPgDocumentRepository(pool *pgxpool.Pool) *PgDocumentRepository {
	return &PgDocumentRepository{pool: pool}
}

// Get devuelve pgx.ErrNoRows si el documento no existe.
func (r *PgDocumentRepository) Get(ctx context.Context, collection, key string) (map[string]any, error) {
	const query = `
		SELECT data
		FROM documents
		WHERE collection = $1 AND key = $2
	`
	var data map[string]any
	if err := r.pool.QueryRow(ctx, query, collection, key).Scan(&data); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

// Upsert crea el documento o lo actualiza. Con merge se conservan los campos
// no enviados; sin merge el documento se reemplaza completo.
func (r *PgDocumentRepository) Upsert(ctx context.Context, collection, key string, fields map[string]any, merge bool) error {
	const mergeQuery = `
		INSERT INTO documents (collection, key, data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, key)
		DO UPDATE SET data = documents.data || EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`
	const replaceQuery = `
		INSERT INTO documents (collection, key, data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, key)
		DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`
	query := replaceQuery
	if merge {
		query = mergeQuery
	}
	if fields == nil {
		fields = map[string]any{}
	}
	_, err := r.pool.Exec(ctx, query, collection, key, fields, time.Now().UTC())
	return err
}
