package payload

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a payload reference has no backing record.
var ErrNotFound = errors.New("payload: not found")

// DocumentRecordStore is the durable backing record for a payload
// reference's already-extracted text (upstream PDF/DOCX parsing is out of
// scope for this service; it hands us plain text to store and serve).
// It implements DocumentStore.
type DocumentRecordStore struct {
	pool *pgxpool.Pool
}

// NewDocumentRecordStore builds a DocumentRecordStore.
func NewDocumentRecordStore(pool *pgxpool.Pool) *DocumentRecordStore {
	return &DocumentRecordStore{pool: pool}
}

// Put stores the text backing payloadRef, overwriting any existing record.
func (d *DocumentRecordStore) Put(ctx context.Context, payloadRef, text string) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO payload_documents (payload_ref, text) VALUES ($1, $2)
		 ON CONFLICT (payload_ref) DO UPDATE SET text = EXCLUDED.text`,
		payloadRef, text,
	)
	if err != nil {
		return fmt.Errorf("storing payload document: %w", err)
	}
	return nil
}

// FetchText satisfies DocumentStore by reading the backing record.
func (d *DocumentRecordStore) FetchText(ctx context.Context, payloadRef string) (string, error) {
	var text string
	err := d.pool.QueryRow(ctx, `SELECT text FROM payload_documents WHERE payload_ref = $1`, payloadRef).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fetching payload document: %w", err)
	}
	return text, nil
}
