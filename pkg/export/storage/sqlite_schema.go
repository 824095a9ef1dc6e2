package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements that create the profile and process
// tables.
const Schema = `
-- Export profiles
CREATE TABLE IF NOT EXISTS export_profiles (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    deployment_id TEXT NOT NULL DEFAULT '',
    organization_id TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    is_default INTEGER NOT NULL DEFAULT 0,
    create_date_time TEXT NOT NULL,
    update_date_time TEXT NOT NULL,
    UNIQUE (name, deployment_id, organization_id)
);

-- At most one default profile per scope
CREATE UNIQUE INDEX IF NOT EXISTS idx_export_profiles_default
    ON export_profiles(deployment_id, organization_id)
    WHERE is_default = 1;

-- Export processes
CREATE TABLE IF NOT EXISTS export_processes (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    export_type TEXT NOT NULL,
    requester_id TEXT NOT NULL,
    deployment_id TEXT NOT NULL DEFAULT '',
    organization_id TEXT NOT NULL DEFAULT '',
    params TEXT,
    result_bucket TEXT NOT NULL DEFAULT '',
    result_key TEXT NOT NULL DEFAULT '',
    seen INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    create_date_time TEXT NOT NULL,
    update_date_time TEXT NOT NULL,
    processing_started_at TEXT
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_export_processes_requester ON export_processes(requester_id, status);
CREATE INDEX IF NOT EXISTS idx_export_processes_status ON export_processes(status);
CREATE INDEX IF NOT EXISTS idx_export_processes_deployment ON export_processes(deployment_id);
CREATE INDEX IF NOT EXISTS idx_export_processes_update ON export_processes(update_date_time);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const profileColumns = `id, name, deployment_id, organization_id, content, is_default, create_date_time, update_date_time`

const processColumns = `id, status, export_type, requester_id, deployment_id, organization_id, params,
	result_bucket, result_key, seen, error, create_date_time, update_date_time, processing_started_at`
