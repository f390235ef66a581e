package sqlinline

// Run ledger queries. The first line of every query is a unique marker that
// infra.SQLRunner logs in place of the statement text.

const QRunsEnsureTable = `--sql 78938c5d-7ee3-4725-aa86-4dc8fd53cc96
CREATE TABLE IF NOT EXISTS reel_runs (
  id           TEXT PRIMARY KEY,
  status       TEXT NOT NULL,
  stage        TEXT NOT NULL,
  input_kind   TEXT NOT NULL,
  caption      TEXT NOT NULL DEFAULT '',
  failed_stage TEXT NOT NULL DEFAULT '',
  error        TEXT NOT NULL DEFAULT '',
  started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
  finished_at  TIMESTAMPTZ
)`

const QRunsInsert = `--sql 53dc2861-dfe6-4c5f-bf34-eb0e79f7da79
INSERT INTO reel_runs (id, status, stage, input_kind, started_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status,
    stage = EXCLUDED.stage,
    input_kind = EXCLUDED.input_kind,
    caption = '',
    failed_stage = '',
    error = '',
    started_at = EXCLUDED.started_at,
    finished_at = NULL`

const QRunsUpdateStage = `--sql 35da65d0-b616-4377-b1a9-0a40b00e7b8e
UPDATE reel_runs SET stage = $2 WHERE id = $1`

const QRunsFinish = `--sql 122a062f-312b-433a-902c-f7c53c79d5ea
UPDATE reel_runs
SET status = $2,
    stage = $3,
    caption = $4,
    failed_stage = $5,
    error = $6,
    finished_at = $7
WHERE id = $1`

const QRunsGetByID = `--sql 7d055dc6-0d5d-4f0a-b854-d4fdcf7071ca
SELECT id, status, stage, input_kind, caption, failed_stage, error, started_at, finished_at
FROM reel_runs
WHERE id = $1`

// All lists every query for lint and schema tooling.
var All = map[string]string{
	"QRunsEnsureTable": QRunsEnsureTable,
	"QRunsInsert":      QRunsInsert,
	"QRunsUpdateStage": QRunsUpdateStage,
	"QRunsFinish":      QRunsFinish,
	"QRunsGetByID":     QRunsGetByID,
}
