// Package repos holds the PostgreSQL stores of the analysis core.
//
// Expected tables (provisioned outside this module):
//
//	CREATE TABLE analysis.watchlist_contexts (
//	    id            TEXT PRIMARY KEY,
//	    name          TEXT NOT NULL,
//	    owner_kind    TEXT NOT NULL,          -- system | user
//	    owner_user_id TEXT NOT NULL DEFAULT '',
//	    assets        TEXT[] NOT NULL,
//	    version       BIGINT NOT NULL,
//	    updated_at    TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE analysis.runs (
//	    run_id               TEXT PRIMARY KEY,
//	    context_id           TEXT NOT NULL,
//	    owner_kind           TEXT NOT NULL,
//	    owner_user_id        TEXT NOT NULL DEFAULT '',
//	    as_of                TIMESTAMPTZ NOT NULL,
//	    computed_at          TIMESTAMPTZ NOT NULL,
//	    aggregate_confidence DOUBLE PRECISION NOT NULL,
//	    disagreement         TEXT NOT NULL,
//	    payload              JSONB NOT NULL
//	);
//	CREATE INDEX runs_context_computed_idx ON analysis.runs (context_id, computed_at DESC);
package repos
