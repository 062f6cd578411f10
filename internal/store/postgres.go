package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/proposal-cli/internal/config"
	"github.com/sells-group/proposal-cli/internal/db"
	"github.com/sells-group/proposal-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"insert_run": `INSERT INTO proposal_runs (id, tenant_id, user_id, minute_id, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"finish_run": `UPDATE proposal_runs SET status = $1, stage_results = $2, sections = $3, total_duration_ms = $4, error_stage = $5, error_message = $6, updated_at = $7 WHERE id = $8`,
	"get_run":    `SELECT id, tenant_id, user_id, minute_id, status, stage_results, sections, total_duration_ms, error_stage, error_message, created_at, updated_at FROM proposal_runs WHERE id = $1`,
	"get_minute": `SELECT id, tenant_id, company_id, company_name, raw_text, parsed_json, industry, area, meeting_date, attendees, next_action_date, status, created_by, created_at, updated_at FROM minutes WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *config.PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (reference data loaders, bulk seeding).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS minutes (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id        TEXT NOT NULL,
	company_id       TEXT,
	company_name     TEXT NOT NULL,
	raw_text         TEXT NOT NULL,
	parsed_json      JSONB,
	industry         TEXT,
	area             TEXT,
	meeting_date     TIMESTAMPTZ,
	attendees        JSONB,
	next_action_date TIMESTAMPTZ,
	status           TEXT NOT NULL DEFAULT 'draft',
	created_by       TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS proposal_runs (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id         TEXT NOT NULL,
	user_id           TEXT NOT NULL,
	minute_id         TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'running',
	stage_results     JSONB,
	sections          JSONB,
	total_duration_ms BIGINT NOT NULL DEFAULT 0,
	error_stage       INTEGER,
	error_message     TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_minutes_tenant ON minutes(tenant_id);
CREATE INDEX IF NOT EXISTS idx_proposal_runs_tenant ON proposal_runs(tenant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_proposal_runs_minute ON proposal_runs(minute_id);
CREATE INDEX IF NOT EXISTS idx_proposal_runs_status ON proposal_runs(status);

CREATE TABLE IF NOT EXISTS media_pricing (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	media_name     TEXT NOT NULL,
	plan_name      TEXT NOT NULL,
	area           TEXT NOT NULL,
	price          BIGINT NOT NULL,
	posting_period TEXT,
	notes          TEXT
);

CREATE INDEX IF NOT EXISTS idx_media_pricing_area ON media_pricing(area);

CREATE TABLE IF NOT EXISTS simulation_params (
	area            TEXT NOT NULL,
	industry        TEXT NOT NULL,
	media_name      TEXT NOT NULL,
	pv_coefficient  DOUBLE PRECISION NOT NULL,
	apply_rate      DOUBLE PRECISION NOT NULL,
	conversion_rate DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (area, industry, media_name)
);

CREATE TABLE IF NOT EXISTS wage_data (
	area            TEXT NOT NULL,
	industry        TEXT NOT NULL,
	employment_type TEXT NOT NULL,
	min_wage        BIGINT NOT NULL,
	avg_wage        BIGINT NOT NULL,
	PRIMARY KEY (area, industry, employment_type)
);

CREATE TABLE IF NOT EXISTS job_category_map (
	industry           TEXT PRIMARY KEY,
	job_category_large TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS publication_records (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	media_name         TEXT NOT NULL,
	job_category_large TEXT NOT NULL,
	area               TEXT NOT NULL,
	plan_name          TEXT,
	headline           TEXT,
	apply_count        INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_publication_records_category ON publication_records(job_category_large);

CREATE TABLE IF NOT EXISTS campaigns (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name            TEXT NOT NULL,
	media_name      TEXT NOT NULL,
	discount_rate   DOUBLE PRECISION,
	discount_amount BIGINT,
	conditions      TEXT,
	active          BOOLEAN NOT NULL DEFAULT true,
	starts_at       TIMESTAMPTZ,
	ends_at         TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_campaigns_active ON campaigns(active);

CREATE TABLE IF NOT EXISTS seasonal_trends (
	area     TEXT NOT NULL,
	industry TEXT NOT NULL,
	season   TEXT NOT NULL,
	demand   TEXT NOT NULL,
	advice   TEXT,
	PRIMARY KEY (area, industry)
);

CREATE TABLE IF NOT EXISTS document_links (
	id       TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	category TEXT NOT NULL,
	name     TEXT NOT NULL,
	url      TEXT NOT NULL,
	active   BOOLEAN NOT NULL DEFAULT true
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, tenantID, userID, minuteID string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO proposal_runs (id, tenant_id, user_id, minute_id, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, tenantID, userID, minuteID, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, fin RunCompletion) error {
	stagesJSON, err := json.Marshal(stripOutputs(fin.StageResults))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stage results")
	}
	sectionsJSON, err := json.Marshal(fin.Sections)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal sections")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE proposal_runs SET status = $1, stage_results = $2, sections = $3, total_duration_ms = $4, error_stage = $5, error_message = $6, updated_at = $7 WHERE id = $8`,
		string(fin.Status), stagesJSON, sectionsJSON, fin.TotalDurationMS,
		fin.ErrorStage, nullIfEmpty(fin.ErrorMessage), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, user_id, minute_id, status, stage_results, sections, total_duration_ms, error_stage, error_message, created_at, updated_at FROM proposal_runs WHERE id = $1`,
		runID,
	)
	r, err := scanRunRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, tenant_id, user_id, minute_id, status, stage_results, sections, total_duration_ms, error_stage, error_message, created_at, updated_at FROM proposal_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.TenantID != "" {
		query += fmt.Sprintf(` AND tenant_id = $%d`, argIdx)
		args = append(args, filter.TenantID)
		argIdx++
	}
	if filter.MinuteID != "" {
		query += fmt.Sprintf(` AND minute_id = $%d`, argIdx)
		args = append(args, filter.MinuteID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRunRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) GetMinute(ctx context.Context, minuteID string) (*model.Minute, error) {
	var m model.Minute
	var parsedJSON, attendeesJSON []byte
	var companyID, industry, area, createdBy *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, company_id, company_name, raw_text, parsed_json, industry, area, meeting_date, attendees, next_action_date, status, created_by, created_at, updated_at FROM minutes WHERE id = $1`,
		minuteID,
	).Scan(&m.ID, &m.TenantID, &companyID, &m.CompanyName, &m.RawText, &parsedJSON,
		&industry, &area, &m.MeetingDate, &attendeesJSON, &m.NextActionDate,
		&m.Status, &createdBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get minute %s", minuteID)
	}

	m.CompanyID = deref(companyID)
	m.Industry = deref(industry)
	m.Area = deref(area)
	m.CreatedBy = deref(createdBy)
	if len(parsedJSON) > 0 {
		if err := json.Unmarshal(parsedJSON, &m.ParsedJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal parsed_json")
		}
	}
	if len(attendeesJSON) > 0 {
		if err := json.Unmarshal(attendeesJSON, &m.Attendees); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal attendees")
		}
	}
	return &m, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRunRow(row scanner) (*model.Run, error) {
	var r model.Run
	var stagesJSON, sectionsJSON []byte
	var errMsg *string

	if err := row.Scan(&r.ID, &r.TenantID, &r.UserID, &r.MinuteID, &r.Status,
		&stagesJSON, &sectionsJSON, &r.TotalDurationMS, &r.ErrorStage, &errMsg,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}

	r.ErrorMessage = deref(errMsg)
	if len(stagesJSON) > 0 {
		if err := json.Unmarshal(stagesJSON, &r.StageResults); err != nil {
			return nil, eris.Wrap(err, "unmarshal stage_results")
		}
	}
	if len(sectionsJSON) > 0 {
		if err := json.Unmarshal(sectionsJSON, &r.Sections); err != nil {
			return nil, eris.Wrap(err, "unmarshal sections")
		}
	}
	return &r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
