package db

// Schema holds the DDL the service expects, applied in order. Statements are
// idempotent so reruns against a live database are safe.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS datasets (
		id             BIGSERIAL PRIMARY KEY,
		slug           TEXT NOT NULL UNIQUE,
		reference_date DATE NOT NULL,
		min_month      DATE NOT NULL,
		max_month      DATE NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS companies (
		id              BIGSERIAL PRIMARY KEY,
		dataset_id      BIGINT NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
		external_id     TEXT NOT NULL,
		vertical        TEXT NOT NULL DEFAULT '',
		incorporated_at DATE NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (dataset_id, external_id)
	)`,
	`CREATE TABLE IF NOT EXISTS activity_records (
		company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		month      DATE NOT NULL,
		mandates   BIGINT NOT NULL DEFAULT 0,
		payments   BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (company_id, month)
	)`,
	`CREATE TABLE IF NOT EXISTS label_runs (
		id            UUID PRIMARY KEY,
		dataset_id    BIGINT NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
		status        TEXT NOT NULL,
		stats         JSONB,
		error_message TEXT NOT NULL DEFAULT '',
		started_at    TIMESTAMPTZ,
		finished_at   TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS label_runs_dataset_created_idx
		ON label_runs (dataset_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS training_rows (
		run_id              UUID NOT NULL REFERENCES label_runs(id) ON DELETE CASCADE,
		dataset_id          BIGINT NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
		company_id          TEXT NOT NULL,
		month               DATE NOT NULL,
		churned             BOOLEAN NOT NULL,
		leading_indicator   BOOLEAN NOT NULL,
		incorporation_years DOUBLE PRECISION NOT NULL,
		vertical            TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, company_id)
	)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		key        TEXT PRIMARY KEY,
		module     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}
