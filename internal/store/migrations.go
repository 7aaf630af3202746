package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "conversations and messages",
		SQL: `
CREATE TABLE conversations (
    id               TEXT PRIMARY KEY,
    message_count    INTEGER NOT NULL DEFAULT 0,
    analyzed_count   INTEGER NOT NULL DEFAULT 0,
    last_analyzed_at INTEGER,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);

CREATE TABLE messages (
    id              INTEGER PRIMARY KEY,
    message_id      TEXT NOT NULL,
    conversation_id TEXT NOT NULL,
    role            TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
    content         TEXT NOT NULL,
    created_at      INTEGER NOT NULL,

    UNIQUE (conversation_id, message_id),
    FOREIGN KEY (conversation_id) REFERENCES conversations(id)
);

CREATE INDEX idx_messages_conversation ON messages(conversation_id, id);
`,
	},
	{
		Version:     2,
		Description: "keywords: per-conversation term statistics",
		SQL: `
CREATE TABLE keywords (
    term            TEXT NOT NULL,
    conversation_id TEXT NOT NULL,
    frequency       INTEGER NOT NULL DEFAULT 0,
    score           REAL NOT NULL DEFAULT 0 CHECK (score >= 0 AND score <= 1),
    first_seen      INTEGER NOT NULL,
    last_seen       INTEGER NOT NULL,

    PRIMARY KEY (term, conversation_id),
    FOREIGN KEY (conversation_id) REFERENCES conversations(id)
);

CREATE INDEX idx_keywords_conversation ON keywords(conversation_id, score DESC);
`,
	},
	{
		Version:     3,
		Description: "subjects: keyword clusters with lifecycle",
		SQL: `
CREATE TABLE subjects (
    id              TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    keywords        TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    message_count   INTEGER NOT NULL DEFAULT 0,
    confidence      REAL NOT NULL DEFAULT 0.8 CHECK (confidence >= 0 AND confidence <= 1),
    first_seen      INTEGER NOT NULL,
    last_seen       INTEGER NOT NULL,
    state           TEXT NOT NULL DEFAULT 'active' CHECK (state IN ('active', 'archived')),
    superseded_by   TEXT,

    CHECK ((state = 'archived') = (superseded_by IS NOT NULL)),
    FOREIGN KEY (conversation_id) REFERENCES conversations(id)
);

CREATE INDEX idx_subjects_conversation ON subjects(conversation_id, state);
CREATE INDEX idx_subjects_state        ON subjects(state, first_seen DESC);
`,
	},
	{
		Version:     4,
		Description: "summaries: versioned conversation synopses",
		SQL: `
CREATE TABLE summaries (
    id              INTEGER PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    version         INTEGER NOT NULL,
    content         TEXT NOT NULL,
    subject_ids     TEXT NOT NULL DEFAULT '[]',
    keywords        TEXT NOT NULL DEFAULT '[]',
    change_reason   TEXT NOT NULL,
    fallback        INTEGER NOT NULL DEFAULT 0,
    predecessor_id  INTEGER,
    created_at      INTEGER NOT NULL,

    UNIQUE (conversation_id, version),
    FOREIGN KEY (conversation_id) REFERENCES conversations(id),
    FOREIGN KEY (predecessor_id) REFERENCES summaries(id)
);
`,
	},
	{
		Version:     5,
		Description: "access_states, principals, group_members",
		SQL: `
CREATE TABLE access_states (
    id             INTEGER PRIMARY KEY,
    keyword        TEXT NOT NULL CHECK (keyword <> ''),
    principal_id   TEXT NOT NULL CHECK (principal_id <> ''),
    principal_type TEXT NOT NULL CHECK (principal_type IN ('user', 'group')),
    state          TEXT NOT NULL CHECK (state IN ('allow', 'deny', 'none')),
    version        INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL,
    updated_by     TEXT NOT NULL DEFAULT '',

    UNIQUE (keyword, principal_id, version)
);

CREATE INDEX idx_access_keyword ON access_states(keyword, principal_id, version DESC);

CREATE TABLE principals (
    id           TEXT PRIMARY KEY,
    type         TEXT NOT NULL CHECK (type IN ('user', 'group')),
    display_name TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL
);

CREATE TABLE group_members (
    group_id  TEXT NOT NULL,
    member_id TEXT NOT NULL,

    PRIMARY KEY (group_id, member_id),
    FOREIGN KEY (group_id) REFERENCES principals(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     6,
		Description: "proposal_configs: versioned per-owner scoring settings",
		SQL: `
CREATE TABLE proposal_configs (
    id                INTEGER PRIMARY KEY,
    owner_id          TEXT NOT NULL,
    version           INTEGER NOT NULL,
    match_weight      REAL NOT NULL,
    recency_weight    REAL NOT NULL,
    recency_window_ms INTEGER NOT NULL CHECK (recency_window_ms > 0),
    min_similarity    REAL NOT NULL,
    max_proposals     INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL,

    UNIQUE (owner_id, version)
);
`,
	},
	{
		Version:     7,
		Description: "subjects: record why a subject was archived",
		SQL: `
ALTER TABLE subjects ADD COLUMN archive_origin TEXT
    CHECK (archive_origin IS NULL OR archive_origin IN ('merged', 'consolidated'));
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
