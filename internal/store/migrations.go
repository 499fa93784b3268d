package store

type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations run in order; applied versions are never edited.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create build runs",
		SQL: `
			CREATE TABLE build_runs (
				id          TEXT PRIMARY KEY,
				target      TEXT NOT NULL,
				use_case    TEXT NOT NULL DEFAULT '',
				state       TEXT NOT NULL,
				task_count  INTEGER NOT NULL DEFAULT 0,
				manifest    TEXT NOT NULL DEFAULT '[]',
				error       TEXT NOT NULL DEFAULT '',
				started_at  TEXT NOT NULL,
				finished_at TEXT
			);

			CREATE INDEX idx_build_runs_started ON build_runs (started_at DESC);
		`,
	},
	{
		Version: 2,
		Name:    "index build runs by target",
		SQL: `
			CREATE INDEX idx_build_runs_target ON build_runs (target, started_at DESC);
		`,
	},
}
