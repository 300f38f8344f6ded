package store

const tableName = "crates"

// The column layout is shared with databases written by earlier releases,
// so date stays TEXT (RFC 3339) and visited stays INTEGER.
const schema = `
CREATE TABLE IF NOT EXISTS crates (
    name TEXT PRIMARY KEY,
    visited INTEGER NOT NULL DEFAULT 0,
    date TEXT
);

CREATE INDEX IF NOT EXISTS idx_crates_visited ON crates(visited);
`
