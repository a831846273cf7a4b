package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"call-insights-go/internal/types"
)

// SQLiteStore is the single-file binding, used for local runs and tests.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS agents (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS calls (
    id TEXT PRIMARY KEY,
    agent_id TEXT,
    agent_name TEXT NOT NULL,
    patient_name TEXT NOT NULL,
    agent_phone_number TEXT NOT NULL,
    bucket TEXT,
    provider TEXT,
    transcript TEXT NOT NULL,
    turns TEXT,
    analysis TEXT NOT NULL,
    total_score REAL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_calls_created ON calls(created_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertCall(ctx context.Context, rec *types.CallRecord) (string, error) {
	rec.ID = uuid.New().String()
	rec.CreatedAt = stamp(rec.CreatedAt)

	analysis, err := json.Marshal(rec.Analysis)
	if err != nil {
		return "", fmt.Errorf("encode analysis: %w", err)
	}
	var turns []byte
	if len(rec.Turns) > 0 {
		if turns, err = json.Marshal(rec.Turns); err != nil {
			return "", fmt.Errorf("encode turns: %w", err)
		}
	}
	var total sql.NullFloat64
	if v, ok := rec.Analysis.TotalScore(); ok {
		total = sql.NullFloat64{Float64: v, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO calls(id, agent_id, agent_name, patient_name, agent_phone_number, bucket, provider, transcript, turns, analysis, total_score, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AgentID, rec.AgentName, rec.PatientName, rec.AgentPhoneNumber, rec.Bucket, rec.Provider,
		rec.Transcript, nullString(turns), string(analysis), total, rec.CreatedAt.UnixNano())
	if err != nil {
		rec.ID = ""
		return "", fmt.Errorf("insert call: %w", err)
	}
	return rec.ID, nil
}

func (s *SQLiteStore) GetCall(ctx context.Context, id string) (*types.CallRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, agent_name, patient_name, agent_phone_number, bucket, provider, transcript, turns, analysis, created_at
		 FROM calls WHERE id = ?`, id)

	var (
		rec             types.CallRecord
		agentID, bucket sql.NullString
		provider, turns sql.NullString
		analysis        string
		created         int64
	)
	err := row.Scan(&rec.ID, &agentID, &rec.AgentName, &rec.PatientName, &rec.AgentPhoneNumber, &bucket, &provider,
		&rec.Transcript, &turns, &analysis, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get call: %w", err)
	}
	rec.AgentID = agentID.String
	rec.Bucket = bucket.String
	rec.Provider = provider.String
	rec.CreatedAt = time.Unix(0, created).UTC()
	if turns.Valid && turns.String != "" {
		if err := json.Unmarshal([]byte(turns.String), &rec.Turns); err != nil {
			return nil, fmt.Errorf("decode turns: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(analysis), &rec.Analysis); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &rec, nil
}

func (s *SQLiteStore) ListCalls(ctx context.Context) ([]types.CallSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_name, patient_name, agent_phone_number, bucket, total_score, created_at
		 FROM calls ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	out := []types.CallSummary{}
	for rows.Next() {
		var (
			sum     types.CallSummary
			bucket  sql.NullString
			total   sql.NullFloat64
			created int64
		)
		if err := rows.Scan(&sum.ID, &sum.AgentName, &sum.PatientName, &sum.AgentPhoneNumber, &bucket, &total, &created); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		sum.Bucket = bucket.String
		if total.Valid {
			v := total.Float64
			sum.TotalScore = &v
		}
		sum.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertAgent(ctx context.Context, name string) (*types.Agent, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents(id, name, created_at) VALUES(?, ?, ?) ON CONFLICT(name) DO NOTHING`,
		uuid.New().String(), name, stamp(time.Time{}).UnixNano())
	if err != nil {
		return nil, fmt.Errorf("upsert agent: %w", err)
	}

	var (
		a       types.Agent
		created int64
	)
	err = s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM agents WHERE name = ?`, name).
		Scan(&a.ID, &a.Name, &created)
	if err != nil {
		return nil, fmt.Errorf("load agent: %w", err)
	}
	a.CreatedAt = time.Unix(0, created).UTC()
	return &a, nil
}

func (s *SQLiteStore) ListAgents(ctx context.Context) ([]types.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM agents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	out := []types.Agent{}
	for rows.Next() {
		var (
			a       types.Agent
			created int64
		)
		if err := rows.Scan(&a.ID, &a.Name, &created); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		a.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}

func nullString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
