package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

type Run struct {
	ID         int64
	SurveyID   string
	StartedAt  int64
	DurationMs int64
	Listed     int64
	Skipped    int64
	Fetched    int64
	Failed     int64
	NotStarted int64
	Failure    string
}

const createRun = `-- name: CreateRun :exec
insert into Run (
    survey_id, started_at, duration_ms, listed, skipped, fetched, failed, not_started, failure
) values (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateRunParams struct {
	SurveyID   string
	StartedAt  int64
	DurationMs int64
	Listed     int64
	Skipped    int64
	Fetched    int64
	Failed     int64
	NotStarted int64
	Failure    string
}

func (q *Queries) CreateRun(ctx context.Context, arg CreateRunParams) error {
	_, err := q.db.ExecContext(ctx, createRun,
		arg.SurveyID,
		arg.StartedAt,
		arg.DurationMs,
		arg.Listed,
		arg.Skipped,
		arg.Fetched,
		arg.Failed,
		arg.NotStarted,
		arg.Failure,
	)
	return err
}

const getRecentRuns = `-- name: GetRecentRuns :many
select id, survey_id, started_at, duration_ms, listed, skipped, fetched, failed, not_started, failure
from Run
where survey_id = ?
order by started_at desc, id desc
limit ?
`

type GetRecentRunsParams struct {
	SurveyID string
	Limit    int64
}

func (q *Queries) GetRecentRuns(ctx context.Context, arg GetRecentRunsParams) ([]Run, error) {
	rows, err := q.db.QueryContext(ctx, getRecentRuns, arg.SurveyID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Run
	for rows.Next() {
		var i Run
		if err := rows.Scan(
			&i.ID,
			&i.SurveyID,
			&i.StartedAt,
			&i.DurationMs,
			&i.Listed,
			&i.Skipped,
			&i.Fetched,
			&i.Failed,
			&i.NotStarted,
			&i.Failure,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
