package catalog

// schemaSQL is the base DDL. latest.json pointers remain the
// inter-stage contract; the catalog is an additive lineage index.
const schemaSQL = `
-- One row per published pipeline run
CREATE TABLE IF NOT EXISTS runs (
    dataset TEXT NOT NULL,
    run_id TEXT NOT NULL,
    run_dir TEXT NOT NULL,
    meta JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (dataset, run_id)
);
`
