// Package history keeps a record of every fetch run in a sqlite (or libsql)
// database so the status view can show how previous runs went.
package history

import (
	"context"
	"database/sql"
	"surveysync/internal/coordinator"
	"surveysync/internal/history/db"
	"surveysync/lib/sqliteutil"
	"time"
)

// Run is a single recorded fetch run.
type Run struct {
	SurveyId   string
	StartedAt  time.Time
	Duration   time.Duration
	Listed     int
	Skipped    int
	Fetched    int
	Failed     int
	NotStarted int
	// Failure is the message of the run's failure, empty if it succeeded.
	Failure string
}

type History struct {
	db  *sql.DB
	qry *db.Queries
}

func Open(path string) (History, error) {
	database, err := sqliteutil.OpenDB(db.Schema, path)
	if err != nil {
		return History{}, err
	}
	return History{db: database, qry: db.New(database)}, nil
}

func (h History) Close() error {
	return h.db.Close()
}

// RunFromReport converts the report of a coordinator run into a Run.
func RunFromReport(surveyId string, startedAt time.Time, duration time.Duration, report coordinator.Report) Run {
	run := Run{
		SurveyId:   surveyId,
		StartedAt:  startedAt,
		Duration:   duration,
		Listed:     report.Listed,
		Skipped:    report.Skipped,
		Fetched:    report.Fetched,
		Failed:     report.Failed,
		NotStarted: report.NotStarted,
	}
	if report.Failure != nil {
		run.Failure = report.Failure.Error()
	}
	return run
}

func (h History) Record(ctx context.Context, run Run) error {
	return h.qry.CreateRun(ctx, db.CreateRunParams{
		SurveyID:   run.SurveyId,
		StartedAt:  run.StartedAt.UnixMilli(),
		DurationMs: run.Duration.Milliseconds(),
		Listed:     int64(run.Listed),
		Skipped:    int64(run.Skipped),
		Fetched:    int64(run.Fetched),
		Failed:     int64(run.Failed),
		NotStarted: int64(run.NotStarted),
		Failure:    run.Failure,
	})
}

// Recent returns up to `limit` runs of the given survey, newest first.
func (h History) Recent(ctx context.Context, surveyId string, limit int) ([]Run, error) {
	rows, err := h.qry.GetRecentRuns(ctx, db.GetRecentRunsParams{
		SurveyID: surveyId,
		Limit:    int64(limit),
	})
	if err != nil {
		return nil, err
	}

	out := make([]Run, len(rows))
	for i, r := range rows {
		out[i] = Run{
			SurveyId:   r.SurveyID,
			StartedAt:  time.UnixMilli(r.StartedAt),
			Duration:   time.Duration(r.DurationMs) * time.Millisecond,
			Listed:     int(r.Listed),
			Skipped:    int(r.Skipped),
			Fetched:    int(r.Fetched),
			Failed:     int(r.Failed),
			NotStarted: int(r.NotStarted),
			Failure:    r.Failure,
		}
	}
	return out, nil
}
