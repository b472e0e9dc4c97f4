package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/codesync/internal/domain/model"
	"github.com/okian/codesync/internal/domain/types"
)

// pgxDB is the subset of *pgxpool.Pool the store uses.
type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore keeps every document as jsonb keyed by student id.
type PostgresStore struct {
	db pgxDB
}

var _ Store = (*PostgresStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS student_profiles (
	student_id TEXT PRIMARY KEY,
	handles    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS canonical_records (
	student_id TEXT NOT NULL,
	platform   TEXT NOT NULL,
	record     JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (student_id, platform)
);
CREATE TABLE IF NOT EXISTS score_records (
	student_id TEXT PRIMARY KEY,
	record     JSONB NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	version    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS score_snapshots (
	id         TEXT PRIMARY KEY,
	student_id TEXT NOT NULL,
	taken_at   TIMESTAMPTZ NOT NULL,
	snapshot   JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS score_snapshots_student_taken
	ON score_snapshots (student_id, taken_at);
`

// NewPostgresPool creates and verifies a pgxpool connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(db pgxDB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// GetRecord implements CanonicalStore.
func (s *PostgresStore) GetRecord(ctx context.Context, studentID string, p types.Platform) (model.CanonicalRecord, error) {
	defer observe("get_record", time.Now())
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT record FROM canonical_records WHERE student_id = $1 AND platform = $2`,
		studentID, string(p),
	).Scan(&raw)
	if err != nil {
		return model.CanonicalRecord{}, notFound(err, "get canonical record")
	}
	var rec model.CanonicalRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.CanonicalRecord{}, fmt.Errorf("decode canonical record: %w", err)
	}
	return rec, nil
}

// SetRecord implements CanonicalStore.
func (s *PostgresStore) SetRecord(ctx context.Context, studentID string, rec model.CanonicalRecord) error {
	defer observe("set_record", time.Now())
	if err := validStudent(studentID); err != nil {
		return err
	}
	if !rec.Platform.Valid() {
		return fmt.Errorf("%w: platform %q", ErrInvalidRecord, rec.Platform)
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode canonical record: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO canonical_records (student_id, platform, record, fetched_at)
		 VALUES ($1, $2, $3::jsonb, $4)
		 ON CONFLICT (student_id, platform)
		 DO UPDATE SET record = EXCLUDED.record, fetched_at = EXCLUDED.fetched_at`,
		studentID, string(rec.Platform), string(doc), rec.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert canonical record: %w", err)
	}
	return nil
}

// DeleteRecord implements CanonicalStore.
func (s *PostgresStore) DeleteRecord(ctx context.Context, studentID string, p types.Platform) error {
	defer observe("delete_record", time.Now())
	_, err := s.db.Exec(ctx,
		`DELETE FROM canonical_records WHERE student_id = $1 AND platform = $2`,
		studentID, string(p),
	)
	if err != nil {
		return fmt.Errorf("delete canonical record: %w", err)
	}
	return nil
}

// ListRecords implements CanonicalStore.
func (s *PostgresStore) ListRecords(ctx context.Context, studentID string) ([]model.CanonicalRecord, error) {
	defer observe("list_records", time.Now())
	rows, err := s.db.Query(ctx,
		`SELECT record FROM canonical_records WHERE student_id = $1`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query canonical records: %w", err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("scan canonical records: %w", err)
	}

	byPlatform := make(map[types.Platform]model.CanonicalRecord, len(docs))
	for _, doc := range docs {
		var rec model.CanonicalRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, fmt.Errorf("decode canonical record: %w", err)
		}
		byPlatform[rec.Platform] = rec
	}
	out := make([]model.CanonicalRecord, 0, len(byPlatform))
	for _, p := range types.AllPlatforms {
		if rec, ok := byPlatform[p]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Handles implements ProfileStore.
func (s *PostgresStore) Handles(ctx context.Context, studentID string) (map[types.Platform]string, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT handles FROM student_profiles WHERE student_id = $1`, studentID,
	).Scan(&raw)
	if err != nil {
		return nil, notFound(err, "get handles")
	}
	handles := make(map[types.Platform]string)
	if err := json.Unmarshal(raw, &handles); err != nil {
		return nil, fmt.Errorf("decode handles: %w", err)
	}
	return handles, nil
}

// SetHandles implements ProfileStore.
func (s *PostgresStore) SetHandles(ctx context.Context, studentID string, handles map[types.Platform]string) error {
	if err := validStudent(studentID); err != nil {
		return err
	}
	if handles == nil {
		handles = map[types.Platform]string{}
	}
	doc, err := json.Marshal(handles)
	if err != nil {
		return fmt.Errorf("encode handles: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO student_profiles (student_id, handles, updated_at)
		 VALUES ($1, $2::jsonb, now())
		 ON CONFLICT (student_id)
		 DO UPDATE SET handles = EXCLUDED.handles, updated_at = now()`,
		studentID, string(doc),
	)
	if err != nil {
		return fmt.Errorf("upsert handles: %w", err)
	}
	return nil
}

// Students implements ProfileStore.
func (s *PostgresStore) Students(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT student_id FROM student_profiles ORDER BY student_id`)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan students: %w", err)
	}
	return ids, nil
}

// GetScore implements ScoreStore.
func (s *PostgresStore) GetScore(ctx context.Context, studentID string) (model.ScoreRecord, error) {
	defer observe("get_score", time.Now())
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT record FROM score_records WHERE student_id = $1`, studentID,
	).Scan(&raw)
	if err != nil {
		return model.ScoreRecord{}, notFound(err, "get score record")
	}
	var rec model.ScoreRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.ScoreRecord{}, fmt.Errorf("decode score record: %w", err)
	}
	return rec, nil
}

// Commit implements ScoreStore in a single transaction. A record computed
// before the stored one does not replace it.
func (s *PostgresStore) Commit(ctx context.Context, rec model.ScoreRecord, snap model.Snapshot) error {
	defer observe("commit", time.Now())
	if err := validStudent(rec.StudentID); err != nil {
		return err
	}
	recDoc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode score record: %w", err)
	}
	snapDoc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO score_records (student_id, record, expires_at, version)
			 VALUES ($1, $2::jsonb, $3, $4)
			 ON CONFLICT (student_id)
			 DO UPDATE SET record = EXCLUDED.record, expires_at = EXCLUDED.expires_at, version = EXCLUDED.version
			 WHERE (score_records.record->>'computedAt')::timestamptz <= $5`,
			rec.StudentID, string(recDoc), rec.ExpiresAt, rec.Version, rec.ComputedAt,
		); err != nil {
			return fmt.Errorf("upsert score record: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO score_snapshots (id, student_id, taken_at, snapshot)
			 VALUES ($1, $2, $3, $4::jsonb)`,
			snap.ID, snap.StudentID, snap.Timestamp, string(snapDoc),
		); err != nil {
			return fmt.Errorf("append snapshot: %w", err)
		}
		return nil
	})
}

// Snapshots implements ScoreStore.
func (s *PostgresStore) Snapshots(ctx context.Context, studentID string, limit int) ([]model.Snapshot, error) {
	query := `SELECT snapshot FROM (
		SELECT snapshot, taken_at, id FROM score_snapshots
		WHERE student_id = $1 ORDER BY taken_at DESC, id DESC LIMIT $2
	) recent ORDER BY taken_at ASC, id ASC`
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.Query(ctx, query, studentID, lim)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("scan snapshots: %w", err)
	}
	out := make([]model.Snapshot, 0, len(docs))
	for _, doc := range docs {
		var snap model.Snapshot
		if err := json.Unmarshal(doc, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
