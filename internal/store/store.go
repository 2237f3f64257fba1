// Package store provides the SQLite-backed relational side of the AskHR
// knowledge base: curated question/answer pairs, the document store and
// index registry that mirror the vector collection, and per-session agent
// chat history. QA rows are the system of record for answers; the vector
// store only holds the embedded questions.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/zorbit-ai/askhr-go/internal/rag"
)

// QAPair is one curated question/answer row. The auto-increment ID doubles
// as the vector point id for the embedded question.
type QAPair struct {
	// ID is the auto-increment row id, assigned on insert.
	ID int64
	// Question is the curated question text. Never empty.
	Question string
	// Answer is the curated answer text. May be empty.
	Answer string
	// UserType is the tenant discriminator (e.g. "eor", "contractor").
	UserType string
	// ClientID scopes the pair to a client organisation, if any.
	ClientID string
	// EORID scopes the pair to an employer-of-record, if any.
	EORID string
	// ContractorID scopes the pair to a contractor, if any.
	ContractorID string
}

// Store is the SQLite database behind the relational half of the knowledge
// base. Safe for concurrent use.
type Store struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default database path, ~/.askhr/askhr.db,
// creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".askhr")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "askhr.db"), nil
}

// Open opens (or creates) a Store at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*Store, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS qa_pairs (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    question      TEXT    NOT NULL CHECK(question <> ''),
    answer        TEXT    NOT NULL DEFAULT '',
    user_type     TEXT    NOT NULL,
    client_id     TEXT    NOT NULL DEFAULT '',
    eor_id        TEXT    NOT NULL DEFAULT '',
    contractor_id TEXT    NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_qa_pairs_tenant ON qa_pairs (user_type);

CREATE TABLE IF NOT EXISTS documents (
    doc_id     TEXT PRIMARY KEY,
    user_type  TEXT    NOT NULL,
    filename   TEXT    NOT NULL,
    content    TEXT    NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_file ON documents (user_type, filename);

CREATE TABLE IF NOT EXISTS index_entries (
    doc_id     TEXT PRIMARY KEY,
    collection TEXT    NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session    TEXT    NOT NULL,
    role       TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content    TEXT    NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_session_created
    ON conversations (session, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// resetSequence rewinds the qa_pairs auto-increment counter to the current
// maximum id, so ids freed by a rolled-back or compensated insert are reused
// instead of leaving gaps between the relational rows and the vector points.
func resetSequence(ctx context.Context, q queryer) error {
	const stmt = `
UPDATE sqlite_sequence
SET    seq = (SELECT COALESCE(MAX(id), 0) FROM qa_pairs)
WHERE  name = 'qa_pairs'`
	if _, err := q.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("store: reset sequence: %w", err)
	}
	return nil
}

// queryer is the subset of sql.DB / sql.Tx used by shared helpers.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// QABatch is an open transaction inserting QA rows one at a time. A failed
// Insert rolls back only that row; earlier rows in the batch survive until
// Commit or Rollback decides their fate.
type QABatch struct {
	tx  *sql.Tx
	ids []int64
}

// BeginQABatch starts a batch insert transaction.
func (s *Store) BeginQABatch(ctx context.Context) (*QABatch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin batch: %w", err)
	}
	return &QABatch{tx: tx}, nil
}

// Insert adds one QA pair inside the batch and returns its assigned id.
// On failure the savepoint for this row is rolled back and the sequence is
// rewound; the rest of the batch is unaffected.
func (b *QABatch) Insert(ctx context.Context, pair QAPair) (int64, error) {
	if _, err := b.tx.ExecContext(ctx, `SAVEPOINT qa_row`); err != nil {
		return 0, fmt.Errorf("store: savepoint: %w", err)
	}

	const q = `
INSERT INTO qa_pairs (question, answer, user_type, client_id, eor_id, contractor_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := b.tx.ExecContext(ctx, q,
		pair.Question, pair.Answer, pair.UserType,
		pair.ClientID, pair.EORID, pair.ContractorID,
		time.Now().Unix())
	if err != nil {
		if _, rbErr := b.tx.ExecContext(ctx, `ROLLBACK TO qa_row`); rbErr != nil {
			return 0, fmt.Errorf("store: insert failed (%v) and savepoint rollback failed: %w", err, rbErr)
		}
		if seqErr := resetSequence(ctx, b.tx); seqErr != nil {
			return 0, fmt.Errorf("store: insert failed (%v) and sequence reset failed: %w", err, seqErr)
		}
		return 0, fmt.Errorf("store: insert qa pair: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: last insert id: %w", err)
	}
	if _, err := b.tx.ExecContext(ctx, `RELEASE qa_row`); err != nil {
		return 0, fmt.Errorf("store: release savepoint: %w", err)
	}

	b.ids = append(b.ids, id)
	return id, nil
}

// IDs returns the ids of every row inserted so far, in insert order.
func (b *QABatch) IDs() []int64 {
	return b.ids
}

// Commit makes all inserted rows durable.
func (b *QABatch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("store: commit batch: %w", err)
	}
	return nil
}

// Rollback discards the whole batch.
func (b *QABatch) Rollback() error {
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("store: rollback batch: %w", err)
	}
	return nil
}

// DeleteQAPairs removes the given rows and rewinds the sequence. Used to
// compensate relational inserts after the paired vector write fails.
func (s *Store) DeleteQAPairs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM qa_pairs WHERE id = ?`, id); err != nil {
			return fmt.Errorf("store: delete qa pair %d: %w", id, err)
		}
	}
	if err := resetSequence(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit delete: %w", err)
	}
	return nil
}

// GetQA returns the QA pair with the given id belonging to tenant.
func (s *Store) GetQA(ctx context.Context, id int64, tenant string) (*QAPair, error) {
	const q = `
SELECT id, question, answer, user_type, client_id, eor_id, contractor_id
FROM   qa_pairs
WHERE  id = ? AND user_type = ?`

	var pair QAPair
	err := s.db.QueryRowContext(ctx, q, id, tenant).Scan(
		&pair.ID, &pair.Question, &pair.Answer, &pair.UserType,
		&pair.ClientID, &pair.EORID, &pair.ContractorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: qa pair %d for tenant %s: %w", id, tenant, rag.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get qa pair: %w", err)
	}
	return &pair, nil
}

// DeleteQA removes the QA pair with the given id belonging to tenant.
// Returns an error wrapping rag.ErrNotFound when no row matches.
func (s *Store) DeleteQA(ctx context.Context, id int64, tenant string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM qa_pairs WHERE id = ? AND user_type = ?`, id, tenant)
	if err != nil {
		return fmt.Errorf("store: delete qa pair: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete qa pair rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: qa pair %d for tenant %s: %w", id, tenant, rag.ErrNotFound)
	}
	return nil
}

// UpdateQA replaces the question and answer of an existing pair.
// Returns an error wrapping rag.ErrNotFound when no row matches.
func (s *Store) UpdateQA(ctx context.Context, id int64, tenant, question, answer string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE qa_pairs SET question = ?, answer = ? WHERE id = ? AND user_type = ?`,
		question, answer, id, tenant)
	if err != nil {
		return fmt.Errorf("store: update qa pair: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update qa pair rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: qa pair %d for tenant %s: %w", id, tenant, rag.ErrNotFound)
	}
	return nil
}

// PutDocument registers a document chunk in the document store.
func (s *Store) PutDocument(ctx context.Context, docID, tenant, filename, content string) error {
	const q = `
INSERT INTO documents (doc_id, user_type, filename, content, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(doc_id) DO UPDATE SET content = excluded.content`
	if _, err := s.db.ExecContext(ctx, q, docID, tenant, filename, content, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: put document: %w", err)
	}
	return nil
}

// DeleteDocument removes a chunk from the document store. Returns an error
// wrapping rag.ErrNotFound when the chunk is not registered.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID)
	if err != nil {
		return fmt.Errorf("store: delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete document rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: document %s: %w", docID, rag.ErrNotFound)
	}
	return nil
}

// PutIndexEntry registers a chunk as present in the named vector collection.
func (s *Store) PutIndexEntry(ctx context.Context, docID, collection string) error {
	const q = `
INSERT INTO index_entries (doc_id, collection, created_at)
VALUES (?, ?, ?)
ON CONFLICT(doc_id) DO UPDATE SET collection = excluded.collection`
	if _, err := s.db.ExecContext(ctx, q, docID, collection, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: put index entry: %w", err)
	}
	return nil
}

// DeleteIndexEntry removes a chunk's index registration. Returns an error
// wrapping rag.ErrNotFound when the chunk is not registered.
func (s *Store) DeleteIndexEntry(ctx context.Context, docID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM index_entries WHERE doc_id = ?`, docID)
	if err != nil {
		return fmt.Errorf("store: delete index entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete index entry rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: index entry %s: %w", docID, rag.ErrNotFound)
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
