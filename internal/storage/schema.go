// Package storage provides job, partner, and audit persistence using SQLite.
package storage

// Schema definitions for the coordination database
const (
	// SchemaV1 is the initial database schema
	SchemaV1 = `
CREATE TABLE IF NOT EXISTS partners (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	phone TEXT NOT NULL UNIQUE,
	is_verified INTEGER NOT NULL DEFAULT 0,
	is_id_verified INTEGER NOT NULL DEFAULT 0,
	is_assigned INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS admin_partner_grants (
	admin_id INTEGER NOT NULL,
	partner_id INTEGER NOT NULL REFERENCES partners(id),
	created_at INTEGER NOT NULL,
	PRIMARY KEY (admin_id, partner_id)
);

CREATE TABLE IF NOT EXISTS customers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	phone TEXT,
	address TEXT,
	city TEXT,
	pincode INTEGER,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT,
	status TEXT NOT NULL DEFAULT 'created',
	partner_id INTEGER REFERENCES partners(id),
	customer_id INTEGER REFERENCES customers(id),
	admin_id INTEGER,
	job_type TEXT,
	base_rate REAL,
	area INTEGER,
	additional_expense REAL NOT NULL DEFAULT 0,
	start_date TEXT,
	delivery_date TEXT,
	map_link TEXT,
	start_verified INTEGER NOT NULL DEFAULT 0,
	finish_verified INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_partner ON jobs(partner_id);

CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id INTEGER NOT NULL REFERENCES jobs(id),
	status TEXT NOT NULL,
	notes TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_job ON audit_log(job_id, created_at);

CREATE TABLE IF NOT EXISTS otc_sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	purpose TEXT NOT NULL,
	job_id INTEGER NOT NULL REFERENCES jobs(id),
	phone TEXT NOT NULL,
	code_hash TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	is_used INTEGER NOT NULL DEFAULT 0,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_otc_lookup ON otc_sessions(purpose, job_id, is_used);

CREATE TABLE IF NOT EXISTS checklists (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	description TEXT,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS checklist_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	checklist_id INTEGER NOT NULL REFERENCES checklists(id),
	text TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_checklist ON checklist_items(checklist_id, position);

CREATE TABLE IF NOT EXISTS job_checklists (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id INTEGER NOT NULL REFERENCES jobs(id),
	checklist_id INTEGER NOT NULL REFERENCES checklists(id),
	created_at INTEGER NOT NULL,
	UNIQUE (job_id, checklist_id)
);

CREATE TABLE IF NOT EXISTS checklist_item_status (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id INTEGER NOT NULL REFERENCES jobs(id),
	checklist_item_id INTEGER NOT NULL REFERENCES checklist_items(id),
	checked INTEGER NOT NULL DEFAULT 0,
	is_approved INTEGER NOT NULL DEFAULT 0,
	comment TEXT,
	admin_comment TEXT,
	document_link TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (job_id, checklist_item_id)
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at INTEGER NOT NULL
);
`
)

// Migrations represents all available migrations
var Migrations = []struct {
	Version int
	SQL     string
}{
	{
		Version: 1,
		SQL:     SchemaV1,
	},
}
