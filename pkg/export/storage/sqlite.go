package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"cohortline/exportd/pkg/config"
	"cohortline/exportd/pkg/export"
)

// Driver names registered by the two SQLite drivers.
const (
	DriverCgo    = "sqlite3"
	DriverPureGo = "sqlite"
)

// timeLayout is fixed width so stored timestamps compare lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStorage implements profile and process persistence on SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config config.SQLiteConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewSQLiteStorage opens the database and creates the schema.
func NewSQLiteStorage(cfg config.SQLiteConfig) (*SQLiteStorage, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverCgo
	}
	if cfg.Driver != DriverCgo && cfg.Driver != DriverPureGo {
		return nil, export.NewStorageError("sqlite", "open", fmt.Errorf("unknown driver %q", cfg.Driver))
	}

	logger := slog.Default().With("component", "export.storage.sqlite")

	db, err := sql.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, export.NewStorageError("sqlite", "open", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	s := &SQLiteStorage{
		db:     db,
		config: cfg,
		now:    time.Now,
		logger: logger,
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", cfg.Path,
		"driver", cfg.Driver,
		"wal_mode", cfg.WALMode,
	)
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return export.NewStorageError("sqlite", "enable_wal", err)
		}
	}
	if s.config.BusyTimeout > 0 {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
			return export.NewStorageError("sqlite", "set_busy_timeout", err)
		}
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return export.NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return export.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return export.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return export.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return export.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite storage closed")
	return nil
}

func (s *SQLiteStorage) stamp() time.Time {
	return s.now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// wrap converts constraint violations into ErrConflict.
func wrap(operation string, err error) error {
	if isConstraint(err) {
		err = fmt.Errorf("%w: %v", export.ErrConflict, err)
	}
	return export.NewStorageError("sqlite", operation, err)
}

// isConstraint matches the message both drivers use for unique violations.
func isConstraint(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateProfile implements export.ProfileStore.
func (s *SQLiteStorage) CreateProfile(ctx context.Context, p *export.Profile) error {
	if err := p.ValidateScope(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.stamp()
	p.CreateDateTime, p.UpdateDateTime = now, now

	content, err := json.Marshal(p.Content)
	if err != nil {
		return export.NewStorageError("sqlite", "create_profile", err)
	}

	return s.inTx(ctx, "create_profile", func(tx *sql.Tx) error {
		if p.Default {
			if err := unsetDefault(ctx, tx, p); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO export_profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.DeploymentID, p.OrganizationID, string(content), p.Default,
			formatTime(p.CreateDateTime), formatTime(p.UpdateDateTime),
		)
		return err
	})
}

// UpdateProfile implements export.ProfileStore.
func (s *SQLiteStorage) UpdateProfile(ctx context.Context, p *export.Profile) error {
	if err := p.ValidateScope(); err != nil {
		return err
	}
	p.UpdateDateTime = s.stamp()

	content, err := json.Marshal(p.Content)
	if err != nil {
		return export.NewStorageError("sqlite", "update_profile", err)
	}

	return s.inTx(ctx, "update_profile", func(tx *sql.Tx) error {
		if p.Default {
			if err := unsetDefault(ctx, tx, p); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE export_profiles
			SET name = ?, deployment_id = ?, organization_id = ?, content = ?, is_default = ?, update_date_time = ?
			WHERE id = ?`,
			p.Name, p.DeploymentID, p.OrganizationID, string(content), p.Default, formatTime(p.UpdateDateTime), p.ID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return export.NewNotFoundError("profile", p.ID)
		}
		return nil
	})
}

// unsetDefault clears the previous default of the profile's scope. The
// partial unique index rejects a second default if this step is skipped.
func unsetDefault(ctx context.Context, tx *sql.Tx, p *export.Profile) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE export_profiles SET is_default = 0
		WHERE deployment_id = ? AND organization_id = ? AND is_default = 1 AND id <> ?`,
		p.DeploymentID, p.OrganizationID, p.ID,
	)
	return err
}

func (s *SQLiteStorage) inTx(ctx context.Context, operation string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return export.NewStorageError("sqlite", operation, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		var nf *export.NotFoundError
		if errors.As(err, &nf) {
			return err
		}
		return wrap(operation, err)
	}
	if err := tx.Commit(); err != nil {
		return wrap(operation, err)
	}
	return nil
}

// GetProfile implements export.ProfileStore.
func (s *SQLiteStorage) GetProfile(ctx context.Context, id string) (*export.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM export_profiles WHERE id = ?`, id)
	return s.oneProfile(row, "get_profile", id)
}

// FindProfile implements export.ProfileStore.
func (s *SQLiteStorage) FindProfile(ctx context.Context, name, deploymentID, organizationID string) (*export.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM export_profiles WHERE name = ? AND deployment_id = ? AND organization_id = ?`,
		name, deploymentID, organizationID,
	)
	return s.oneProfile(row, "find_profile", name)
}

// DefaultProfile implements export.ProfileStore.
func (s *SQLiteStorage) DefaultProfile(ctx context.Context, deploymentID, organizationID string) (*export.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM export_profiles WHERE deployment_id = ? AND organization_id = ? AND is_default = 1`,
		deploymentID, organizationID,
	)
	return s.oneProfile(row, "default_profile", "default:"+deploymentID+organizationID)
}

func (s *SQLiteStorage) oneProfile(row *sql.Row, operation, id string) (*export.Profile, error) {
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, export.NewNotFoundError("profile", id)
	}
	if err != nil {
		return nil, export.NewStorageError("sqlite", operation, err)
	}
	return p, nil
}

// ListProfiles implements export.ProfileStore.
func (s *SQLiteStorage) ListProfiles(ctx context.Context, deploymentID, organizationID string) ([]*export.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM export_profiles WHERE deployment_id = ? AND organization_id = ? ORDER BY name`,
		deploymentID, organizationID,
	)
	if err != nil {
		return nil, export.NewStorageError("sqlite", "list_profiles", err)
	}
	defer rows.Close()

	profiles := []*export.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, export.NewStorageError("sqlite", "scan", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, export.NewStorageError("sqlite", "list_profiles", err)
	}
	return profiles, nil
}

// DeleteProfile implements export.ProfileStore.
func (s *SQLiteStorage) DeleteProfile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM export_profiles WHERE id = ?`, id)
	if err != nil {
		return export.NewStorageError("sqlite", "delete_profile", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return export.NewNotFoundError("profile", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*export.Profile, error) {
	var (
		p                export.Profile
		content          string
		created, updated string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.DeploymentID, &p.OrganizationID, &content, &p.Default, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(content), &p.Content); err != nil {
		return nil, fmt.Errorf("decode profile content: %w", err)
	}
	var err error
	if p.CreateDateTime, err = parseTime(created); err != nil {
		return nil, err
	}
	if p.UpdateDateTime, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProcess implements export.ProcessStore.
func (s *SQLiteStorage) CreateProcess(ctx context.Context, p *export.Process) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = export.StatusCreated
	}
	now := s.stamp()
	p.CreateDateTime, p.UpdateDateTime = now, now

	params, err := json.Marshal(p.Params)
	if err != nil {
		return export.NewStorageError("sqlite", "create_process", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO export_processes (`+processColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.Status), string(p.ExportType), p.RequesterID, p.DeploymentID, p.OrganizationID, string(params),
		p.Result.Bucket, p.Result.Key, p.Seen, p.Error,
		formatTime(p.CreateDateTime), formatTime(p.UpdateDateTime), nullableTime(p.ProcessingStartedAt),
	)
	if err != nil {
		return wrap("create_process", err)
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// GetProcess implements export.ProcessStore.
func (s *SQLiteStorage) GetProcess(ctx context.Context, id string) (*export.Process, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+processColumns+` FROM export_processes WHERE id = ?`, id)
	p, err := scanProcess(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, export.NewNotFoundError("process", id)
	}
	if err != nil {
		return nil, export.NewStorageError("sqlite", "get_process", err)
	}
	return p, nil
}

// TransitionProcess implements export.ProcessStore as a single conditional
// UPDATE on the current status.
func (s *SQLiteStorage) TransitionProcess(ctx context.Context, id string, from export.ProcessStatus, u export.ProcessUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE export_processes
		SET status = ?, result_bucket = ?, result_key = ?, error = ?,
		    processing_started_at = COALESCE(?, processing_started_at), update_date_time = ?
		WHERE id = ? AND status = ?`,
		string(u.Status), u.Result.Bucket, u.Result.Key, u.Error,
		nullableTime(u.ProcessingStartedAt), formatTime(s.stamp()),
		id, string(from),
	)
	if err != nil {
		return export.NewStorageError("sqlite", "transition_process", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := s.GetProcess(ctx, id); err != nil {
		return err
	}
	return export.ErrConflict
}

// MarkSeen implements export.ProcessStore.
func (s *SQLiteStorage) MarkSeen(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE export_processes SET seen = 1, update_date_time = ? WHERE id = ?`,
		formatTime(s.stamp()), id,
	)
	if err != nil {
		return export.NewStorageError("sqlite", "mark_seen", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return export.NewNotFoundError("process", id)
	}
	return nil
}

// ListProcesses implements export.ProcessStore, oldest first.
func (s *SQLiteStorage) ListProcesses(ctx context.Context, q export.ProcessQuery) ([]*export.Process, error) {
	where, args := buildWhereClause(q)
	query := `SELECT ` + processColumns + ` FROM export_processes`
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY create_date_time ASC, id ASC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, export.NewStorageError("sqlite", "list_processes", err)
	}
	defer rows.Close()

	processes := []*export.Process{}
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, export.NewStorageError("sqlite", "scan", err)
		}
		processes = append(processes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, export.NewStorageError("sqlite", "list_processes", err)
	}
	return processes, nil
}

// DeleteProcess implements export.ProcessStore.
func (s *SQLiteStorage) DeleteProcess(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM export_processes WHERE id = ?`, id)
	if err != nil {
		return export.NewStorageError("sqlite", "delete_process", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return export.NewNotFoundError("process", id)
	}
	return nil
}

// buildWhereClause builds a SQL WHERE clause (without the keyword) from
// process filters.
func buildWhereClause(q export.ProcessQuery) (string, []any) {
	var conditions []string
	var args []any

	if q.RequesterID != "" {
		conditions = append(conditions, "requester_id = ?")
		args = append(args, q.RequesterID)
	}
	if q.DeploymentID != "" {
		conditions = append(conditions, "deployment_id = ?")
		args = append(args, q.DeploymentID)
	}
	if q.OrganizationID != "" {
		conditions = append(conditions, "organization_id = ?")
		args = append(args, q.OrganizationID)
	}
	if len(q.Statuses) > 0 {
		conditions = append(conditions, "status IN ("+placeholders(len(q.Statuses))+")")
		for _, st := range q.Statuses {
			args = append(args, string(st))
		}
	}
	if len(q.ExportTypes) > 0 {
		conditions = append(conditions, "export_type IN ("+placeholders(len(q.ExportTypes))+")")
		for _, et := range q.ExportTypes {
			args = append(args, string(et))
		}
	}
	if q.UpdatedBefore != nil {
		conditions = append(conditions, "update_date_time < ?")
		args = append(args, formatTime(*q.UpdatedBefore))
	}
	if q.ProcessingStartedBefore != nil {
		conditions = append(conditions, "processing_started_at IS NOT NULL AND processing_started_at < ?")
		args = append(args, formatTime(*q.ProcessingStartedBefore))
	}

	return strings.Join(conditions, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func scanProcess(row scanner) (*export.Process, error) {
	var (
		p                  export.Process
		status, exportType string
		params             sql.NullString
		created, updated   string
		startedAt          sql.NullString
	)
	err := row.Scan(&p.ID, &status, &exportType, &p.RequesterID, &p.DeploymentID, &p.OrganizationID, &params,
		&p.Result.Bucket, &p.Result.Key, &p.Seen, &p.Error, &created, &updated, &startedAt)
	if err != nil {
		return nil, err
	}
	p.Status = export.ProcessStatus(status)
	p.ExportType = export.ExportType(exportType)
	if params.Valid && params.String != "" && params.String != "null" {
		if err := json.Unmarshal([]byte(params.String), &p.Params); err != nil {
			return nil, fmt.Errorf("decode process params: %w", err)
		}
	}
	if p.CreateDateTime, err = parseTime(created); err != nil {
		return nil, err
	}
	if p.UpdateDateTime, err = parseTime(updated); err != nil {
		return nil, err
	}
	if startedAt.Valid {
		t, err := parseTime(startedAt.String)
		if err != nil {
			return nil, err
		}
		p.ProcessingStartedAt = &t
	}
	return &p, nil
}
