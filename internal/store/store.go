// Package store is the persistence layer: knowledge bases, scrape
// jobs, documents, chunks, and the pgvector-backed nearest-neighbor
// query. All access goes through a shared *sql.DB using the pgx stdlib
// driver.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sqlc-dev/pqtype"
)

var (
	// ErrNotFound means the row does not exist (or is soft-deleted).
	ErrNotFound = errors.New("not found")
	// ErrConflict means the write violates an invariant: an illegal
	// status transition, a selection outside the discovered set, or a
	// configuration change that existing data forbids.
	ErrConflict = errors.New("conflict")
)

// Store wraps access to the database.
type Store struct {
	DB *sql.DB
}

// New creates a Store on a shared *sql.DB with pooling.
func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

// jsonbStrings marshals a string slice for a jsonb column; nil becomes
// an empty array so NOT NULL DEFAULT '[]' columns stay well-formed.
func jsonbStrings(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

func scanStrings(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// jsonbMap marshals an arbitrary metadata map into a nullable jsonb
// parameter.
func jsonbMap(m map[string]any) (pqtype.NullRawMessage, error) {
	if m == nil {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}

func scanMap(raw pqtype.NullRawMessage) (map[string]any, error) {
	if !raw.Valid {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw.RawMessage, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func fromNullString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
