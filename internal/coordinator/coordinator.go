// Package coordinator downloads every survey response that is not cached yet
// while keeping at most a fixed number of fetches in flight.
//
// A run lists the response ids once, skips the ones the store already has and
// fetches the rest in listing order. The first fetch that does not return 200
// (or whose payload cannot be stored) aborts the run: no new fetch is started
// after that, the ones in flight finish and the run reports the failure.
// Re-running is the retry mechanism, already cached ids are skipped.
package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"surveysync/internal/cache"
	"surveysync/internal/components/assert"
	"surveysync/internal/components/telemetry"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const (
	report_coordinator_list    = "coordinator.list"
	report_coordinator_fetch   = "coordinator.fetch"
	report_coordinator_persist = "coordinator.persist"
	report_coordinator_fetched = "coordinator.fetched"
	report_coordinator_skipped = "coordinator.skipped"
)

const (
	DefaultConcurrency = 5
	DefaultCooldown    = 3 * time.Second
)

var tracer = otel.Tracer("surveysync/coordinator")
var meter = otel.Meter("surveysync/coordinator")

var fetchedCounter, _ = meter.Int64Counter(
	"responses_fetched",
	metric.WithDescription("survey responses downloaded and cached"),
)
var skippedCounter, _ = meter.Int64Counter(
	"responses_skipped",
	metric.WithDescription("survey responses that were already cached"),
)
var failedCounter, _ = meter.Int64Counter(
	"responses_failed",
	metric.WithDescription("survey responses that could not be fetched or cached"),
)

// Lister enumerates the response ids that exist right now.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// Fetcher downloads a single response. The error is only for when no status
// was received at all, any status other than 200 counts as a failure.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (status int, payload []byte, err error)
}

// Store is where fetched responses are kept, the existence of an entry is
// the only thing that marks an id as done.
type Store interface {
	Exists(id string) (bool, error)
	Write(id string, payload []byte) error
	Delete(id string) error
}

type Options struct {
	// Concurrency is the maximum amount of fetches in flight, it must be positive.
	Concurrency int
	// Cooldown is how long a slot stays occupied after a successful fetch.
	Cooldown time.Duration
}

func DefaultOptions() Options {
	return Options{
		Concurrency: DefaultConcurrency,
		Cooldown:    DefaultCooldown,
	}
}

// Report summarizes a run.
type Report struct {
	// Listed is the amount of ids the listing returned.
	Listed int
	// Skipped is the amount of ids that were already cached.
	Skipped int
	// Launched is the amount of fetch tasks that were started.
	Launched int
	// Fetched is the amount of responses that were fetched and cached.
	Fetched int
	// Failed is the amount of ids that failed to be fetched or cached.
	Failed int
	// NotStarted is the amount of ids left unvisited because the run was aborted.
	NotStarted int
	// Failure is the first failure observed, it is nil if the run succeeded.
	Failure error
}

type Coordinator struct {
	lister  Lister
	fetcher Fetcher
	store   Store
	opts    Options
	tel     telemetry.API
}

func New(lister Lister, fetcher Fetcher, store Store, opts Options, tel telemetry.API) Coordinator {
	assert.NotNil(lister)
	assert.NotNil(fetcher)
	assert.NotNil(store)
	assert.NotNil(tel)
	assert.Positive("concurrency", opts.Concurrency)
	if opts.Cooldown < 0 {
		panic(fmt.Sprintf("expected cooldown to be non-negative, got %s", opts.Cooldown))
	}

	return Coordinator{
		lister:  lister,
		fetcher: fetcher,
		store:   store,
		opts:    opts,
		tel:     telemetry.NewScopedAPI("coordinator", tel),
	}
}

// run holds the state shared between the dispatch loop and the fetch tasks of a single Run.
type run struct {
	c *Coordinator

	slots   *semaphore.Weighted
	tasks   sync.WaitGroup
	aborted atomic.Bool

	fetched atomic.Int64
	failed  atomic.Int64

	mutex   sync.Mutex
	failure error
}

// abort records `err` and signals every task that the run should stop. The
// signal is never cleared, only the first error is kept as the run's failure.
func (r *run) abort(err error) {
	r.failed.Add(1)

	r.mutex.Lock()
	if r.failure == nil {
		r.failure = err
	}
	r.mutex.Unlock()

	r.aborted.Store(true)
}

func (r *run) firstFailure() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.failure
}

func validateIds(ids []string) error {
	seen := make(map[string]int, len(ids))
	for i, id := range ids {
		if !cache.ValidId(id) {
			return fmt.Errorf("malformed response id at index %d: %q", i, id)
		}
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("duplicate response id %q at index %d and %d", id, prev, i)
		}
		seen[id] = i
	}
	return nil
}

// Run performs a single fetch-and-cache pass. The returned error is the
// same as Report.Failure, it is one of *ListError, *FetchError, *PersistError
// or the context's error if the run was cancelled.
func (c Coordinator) Run(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, "coordinator:run", trace.WithAttributes(
		attribute.Int("custom.concurrency", c.opts.Concurrency),
		attribute.String("custom.cooldown", c.opts.Cooldown.String()),
	))
	defer span.End()

	var report Report

	ids, err := c.lister.List(ctx)
	if err != nil {
		c.tel.ReportBroken(report_coordinator_list, err)
		report.Failure = &ListError{Err: err}
		span.RecordError(report.Failure)
		span.SetStatus(codes.Error, "listing failed")
		return report, report.Failure
	}
	err = validateIds(ids)
	if err != nil {
		c.tel.ReportBroken(report_coordinator_list, err)
		report.Failure = &ListError{Err: err}
		span.RecordError(report.Failure)
		span.SetStatus(codes.Error, "listing returned malformed ids")
		return report, report.Failure
	}
	report.Listed = len(ids)
	span.SetAttributes(attribute.Int("custom.listed", len(ids)))

	r := &run{
		c:     &c,
		slots: semaphore.NewWeighted(int64(c.opts.Concurrency)),
	}

	for i, id := range ids {
		if r.aborted.Load() || ctx.Err() != nil {
			report.NotStarted = len(ids) - i
			break
		}

		exists, err := c.store.Exists(id)
		if err != nil {
			c.tel.ReportBroken(report_coordinator_persist, err, id)
			r.abort(&PersistError{Id: id, Op: "exists", Err: err})
			continue
		}
		if exists {
			report.Skipped++
			skippedCounter.Add(ctx, 1)
			c.tel.ReportDebug("already cached", id)
			continue
		}

		// blocks while the maximum amount of fetches are in flight
		err = r.slots.Acquire(ctx, 1)
		if err != nil {
			report.NotStarted = len(ids) - i
			break
		}
		// the abort may have been signaled while waiting for a slot
		if r.aborted.Load() || ctx.Err() != nil {
			r.slots.Release(1)
			report.NotStarted = len(ids) - i
			break
		}

		report.Launched++
		r.tasks.Add(1)
		go r.fetch(ctx, id)
	}

	r.tasks.Wait()

	report.Fetched = int(r.fetched.Load())
	report.Failed = int(r.failed.Load())
	report.Failure = r.firstFailure()
	if report.Failure == nil && ctx.Err() != nil {
		report.Failure = fmt.Errorf("run cancelled: %w", ctx.Err())
	}

	c.tel.ReportCount(report_coordinator_fetched, int64(report.Fetched))
	c.tel.ReportCount(report_coordinator_skipped, int64(report.Skipped))

	span.SetAttributes(
		attribute.Int("custom.skipped", report.Skipped),
		attribute.Int("custom.fetched", report.Fetched),
		attribute.Int("custom.failed", report.Failed),
	)
	if report.Failure != nil {
		span.RecordError(report.Failure)
		span.SetStatus(codes.Error, "run aborted")
	}

	return report, report.Failure
}

func (r *run) fetch(ctx context.Context, id string) {
	defer r.tasks.Done()
	defer r.slots.Release(1)

	c := r.c

	ctx, span := tracer.Start(ctx, "coordinator:fetch", trace.WithAttributes(
		attribute.String("custom.response_id", id),
	))
	defer span.End()

	status, payload, err := c.fetcher.Fetch(ctx, id)
	span.SetAttributes(attribute.Int("custom.status", status))
	if err != nil || status != http.StatusOK {
		fetchErr := &FetchError{Id: id, StatusCode: status, Err: err}
		c.tel.ReportBroken(report_coordinator_fetch, fetchErr, id, status)
		span.RecordError(fetchErr)
		span.SetStatus(codes.Error, "fetch failed")

		// the file must be gone before the abort is visible
		r.cleanup(id)
		failedCounter.Add(ctx, 1)
		r.abort(fetchErr)
		return
	}

	err = c.store.Write(id, payload)
	if err != nil {
		persistErr := &PersistError{Id: id, Op: "write", Err: err}
		c.tel.ReportBroken(report_coordinator_persist, persistErr, id)
		span.RecordError(persistErr)
		span.SetStatus(codes.Error, "write failed")

		r.cleanup(id)
		failedCounter.Add(ctx, 1)
		r.abort(persistErr)
		return
	}

	r.fetched.Add(1)
	fetchedCounter.Add(ctx, 1)
	c.tel.ReportDebug("cached response", id, len(payload))

	r.cooldown(ctx)
}

func (r *run) cleanup(id string) {
	err := r.c.store.Delete(id)
	if err != nil {
		// counted as part of the failure that triggered the cleanup
		r.c.tel.ReportBroken(report_coordinator_persist, &PersistError{Id: id, Op: "delete", Err: err}, id)
	}
}

// cooldown keeps the slot occupied for the configured duration so the remote
// does not see bursts of requests, it returns early if the run is cancelled.
func (r *run) cooldown(ctx context.Context) {
	if r.c.opts.Cooldown <= 0 {
		return
	}
	timer := time.NewTimer(r.c.opts.Cooldown)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
