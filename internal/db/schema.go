package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS sectors (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS items (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    sku        TEXT NOT NULL DEFAULT '',
    sector_id  INTEGER REFERENCES sectors(id),
    quantity   INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
    location   TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS stock_balances (
    item_id    INTEGER NOT NULL REFERENCES items(id),
    sector_id  INTEGER NOT NULL REFERENCES sectors(id),
    quantity   INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (item_id, sector_id)
);

CREATE TABLE IF NOT EXISTS movements (
    id                 INTEGER PRIMARY KEY,
    item_id            INTEGER NOT NULL REFERENCES items(id),
    direction          TEXT NOT NULL CHECK (direction IN ('in', 'out')),
    amount             INTEGER NOT NULL CHECK (amount > 0),
    reason             TEXT NOT NULL DEFAULT '',
    notes              TEXT NOT NULL DEFAULT '',
    actor_id           INTEGER NOT NULL DEFAULT 0,
    actor_name         TEXT NOT NULL DEFAULT '',
    source_sector_id   INTEGER REFERENCES sectors(id),
    target_sector_id   INTEGER REFERENCES sectors(id),
    source_location    TEXT NOT NULL DEFAULT '',
    target_location    TEXT NOT NULL DEFAULT '',
    requires_signature INTEGER NOT NULL DEFAULT 0,
    transfer_status    TEXT NOT NULL DEFAULT 'signed' CHECK (transfer_status IN ('pending', 'signed')),
    group_key          TEXT NOT NULL DEFAULT '',
    document_key       TEXT NOT NULL DEFAULT '',
    document_url       TEXT NOT NULL DEFAULT '',
    finalizing         INTEGER NOT NULL DEFAULT 0,
    finalizing_at      DATETIME,
    finalized_at       DATETIME,
    created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_movements_item ON movements(item_id);
CREATE INDEX IF NOT EXISTS idx_movements_group ON movements(group_key);
CREATE INDEX IF NOT EXISTS idx_movements_document ON movements(document_key);

CREATE TABLE IF NOT EXISTS movement_files (
    id            INTEGER PRIMARY KEY,
    movement_id   INTEGER NOT NULL REFERENCES movements(id),
    kind          TEXT NOT NULL CHECK (kind IN ('signature', 'photo', 'document')),
    label         TEXT NOT NULL DEFAULT '',
    blob_key      TEXT NOT NULL,
    blob_url      TEXT NOT NULL DEFAULT '',
    mime          TEXT NOT NULL DEFAULT '',
    original_name TEXT NOT NULL DEFAULT '',
    uploaded_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_movement_files_movement ON movement_files(movement_id);

CREATE TABLE IF NOT EXISTS movement_tokens (
    id          INTEGER PRIMARY KEY,
    movement_id INTEGER NOT NULL REFERENCES movements(id),
    token       TEXT NOT NULL UNIQUE,
    expires_at  INTEGER NOT NULL,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_movement_tokens_movement ON movement_tokens(movement_id, expires_at);

CREATE TABLE IF NOT EXISTS blobs (
    key        TEXT PRIMARY KEY,
    mime       TEXT NOT NULL,
    name       TEXT NOT NULL DEFAULT '',
    data       BLOB NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
