package ledger

// schema is the DDL applied on Open: one raw-SQL-string constant,
// IF NOT EXISTS everywhere, executed once at startup.
const schema = `
PRAGMA journal_mode = WAL;
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS activity_log (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_key   TEXT NOT NULL,
    day        TEXT NOT NULL,
    op         TEXT NOT NULL CHECK(op IN ('+', '-')),
    ts         INTEGER NOT NULL,
    metadata   TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_activity_day ON activity_log(day);
CREATE INDEX IF NOT EXISTS idx_activity_user_day ON activity_log(user_key, day);

CREATE TABLE IF NOT EXISTS erasure_log (
    id           TEXT PRIMARY KEY,
    user_key     TEXT NOT NULL,
    day          TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'done')),
    created_at   INTEGER NOT NULL,
    completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_erasure_status ON erasure_log(status);
CREATE INDEX IF NOT EXISTS idx_erasure_day ON erasure_log(day);

CREATE TABLE IF NOT EXISTS releases (
    id         TEXT PRIMARY KEY,
    metric     TEXT NOT NULL CHECK(metric IN ('DAU', 'MAU')),
    day        TEXT NOT NULL,
    window     INTEGER NOT NULL DEFAULT 1,
    epsilon    REAL NOT NULL,
    delta      REAL NOT NULL,
    mechanism  TEXT NOT NULL,
    raw        REAL NOT NULL,
    estimate   REAL NOT NULL,
    ci_low     REAL NOT NULL,
    ci_high    REAL NOT NULL,
    seed       INTEGER,
    bloom_bias INTEGER NOT NULL DEFAULT 0,
    ts         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_releases_metric_day ON releases(metric, day);

CREATE TABLE IF NOT EXISTS budget (
    metric        TEXT NOT NULL,
    month         TEXT NOT NULL,
    naive_spent   REAL NOT NULL DEFAULT 0,
    release_count INTEGER NOT NULL DEFAULT 0,
    rdp_blob      TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (metric, month)
);

CREATE TABLE IF NOT EXISTS salt_epochs (
    id             TEXT PRIMARY KEY,
    secret         BLOB NOT NULL,
    effective_date TEXT NOT NULL,
    rotation_days  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS day_sketch_blob (
    day  TEXT NOT NULL,
    impl TEXT NOT NULL,
    blob BLOB NOT NULL,
    ts   INTEGER NOT NULL,
    PRIMARY KEY (day, impl)
);
`
