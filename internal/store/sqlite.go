package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/proposal-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local
// development and CLI runs without a Postgres server.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS minutes (
	id               TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL,
	company_id       TEXT,
	company_name     TEXT NOT NULL,
	raw_text         TEXT NOT NULL,
	parsed_json      TEXT,
	industry         TEXT,
	area             TEXT,
	meeting_date     DATETIME,
	attendees        TEXT,
	next_action_date DATETIME,
	status           TEXT NOT NULL DEFAULT 'draft',
	created_by       TEXT,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS proposal_runs (
	id                TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL,
	user_id           TEXT NOT NULL,
	minute_id         TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'running',
	stage_results     TEXT,
	sections          TEXT,
	total_duration_ms INTEGER NOT NULL DEFAULT 0,
	error_stage       INTEGER,
	error_message     TEXT,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_minutes_tenant ON minutes(tenant_id);
CREATE INDEX IF NOT EXISTS idx_proposal_runs_tenant ON proposal_runs(tenant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_proposal_runs_minute ON proposal_runs(minute_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, tenantID, userID, minuteID string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO proposal_runs (id, tenant_id, user_id, minute_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, tenantID, userID, minuteID, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		TenantID:  tenantID,
		UserID:    userID,
		MinuteID:  minuteID,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, fin RunCompletion) error {
	stagesJSON, err := json.Marshal(stripOutputs(fin.StageResults))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stage results")
	}
	sectionsJSON, err := json.Marshal(fin.Sections)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal sections")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE proposal_runs SET status = ?, stage_results = ?, sections = ?, total_duration_ms = ?, error_stage = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(fin.Status), string(stagesJSON), string(sectionsJSON), fin.TotalDurationMS,
		fin.ErrorStage, nullIfEmpty(fin.ErrorMessage), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, user_id, minute_id, status, stage_results, sections, total_duration_ms, error_stage, error_message, created_at, updated_at FROM proposal_runs WHERE id = ?`,
		runID,
	)
	r, err := scanRunRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, tenant_id, user_id, minute_id, status, stage_results, sections, total_duration_ms, error_stage, error_message, created_at, updated_at FROM proposal_runs WHERE 1=1`
	var args []any

	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.MinuteID != "" {
		query += ` AND minute_id = ?`
		args = append(args, filter.MinuteID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRunRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) GetMinute(ctx context.Context, minuteID string) (*model.Minute, error) {
	var m model.Minute
	var parsedJSON, attendeesJSON sql.NullString
	var companyID, industry, area, createdBy sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, company_id, company_name, raw_text, parsed_json, industry, area, meeting_date, attendees, next_action_date, status, created_by, created_at, updated_at FROM minutes WHERE id = ?`,
		minuteID,
	).Scan(&m.ID, &m.TenantID, &companyID, &m.CompanyName, &m.RawText, &parsedJSON,
		&industry, &area, &m.MeetingDate, &attendeesJSON, &m.NextActionDate,
		&m.Status, &createdBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get minute %s", minuteID)
	}

	m.CompanyID = companyID.String
	m.Industry = industry.String
	m.Area = area.String
	m.CreatedBy = createdBy.String
	if parsedJSON.Valid && parsedJSON.String != "" {
		if err := json.Unmarshal([]byte(parsedJSON.String), &m.ParsedJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal parsed_json")
		}
	}
	if attendeesJSON.Valid && attendeesJSON.String != "" {
		if err := json.Unmarshal([]byte(attendeesJSON.String), &m.Attendees); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal attendees")
		}
	}
	return &m, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", kind, id)
	}
	return nil
}
