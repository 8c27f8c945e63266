package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/wb1016/copernicus-mcp/internal/cdse"
	"github.com/wb1016/copernicus-mcp/internal/pathutil"
)

const (
	// DefaultConcurrency is the worker count when the caller passes none.
	DefaultConcurrency = 3
	// MaxConcurrency is the hard ceiling protecting the remote service and
	// local bandwidth no matter what the caller asks for.
	MaxConcurrency = 8
)

// Task describes one download: which product, which mission it belongs
// to (for file naming), and which rendition to fetch.
type Task struct {
	ProductID string
	Mission   string
	Kind      pathutil.Kind
}

// Outcome reports one task's result. Outcomes are returned in task
// order, so callers correlate inputs to results by position.
type Outcome struct {
	ProductID string
	Kind      pathutil.Kind
	Success   bool
	Path      string
	Bytes     int64
	URL       string
	Attempts  int
	Elapsed   time.Duration
	Err       error
	Reason    string
}

// Summary aggregates a batch of outcomes.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Bytes     int64
}

// Summarize tallies outcomes for reporting.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		if o.Success {
			s.Succeeded++
			s.Bytes += o.Bytes
		} else {
			s.Failed++
		}
	}
	return s
}

// Config configures the orchestrator.
type Config struct {
	Concurrency    int
	MaxConcurrency int
	Policy         RetryPolicy
	Clock          clockwork.Clock
}

// Orchestrator runs download tasks through a bounded worker pool. Each
// task acquires a credential, resolves its endpoint chain, and streams
// through the transfer client; failures are retried per the policy and
// recorded, never aborting the rest of the batch.
type Orchestrator struct {
	client   *cdse.Client
	transfer *cdse.TransferClient
	creds    *cdse.CredentialCache
	cfg      Config
	clock    clockwork.Clock
	logger   zerolog.Logger
}

// New builds an orchestrator over the catalog and transfer clients,
// filling defaults for unset config fields.
func New(client *cdse.Client, transfer *cdse.TransferClient, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = MaxConcurrency
	}
	if cfg.Policy == (RetryPolicy{}) {
		cfg.Policy = DefaultRetryPolicy()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Orchestrator{
		client:   client,
		transfer: transfer,
		creds:    client.Credentials(),
		cfg:      cfg,
		clock:    clock,
		logger:   logger.With().Str("component", "downloader").Logger(),
	}
}

// Run downloads tasks into dir with at most concurrency workers
// (0 selects the configured default) and returns one outcome per task,
// in task order. The directory is created once before the batch starts.
// Only batch-level problems return an error; per-task failures live in
// the outcomes.
func (o *Orchestrator) Run(ctx context.Context, dir string, tasks []Task, concurrency int) ([]Outcome, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	if o.creds == nil || !o.creds.Configured() {
		return nil, fmt.Errorf("downloads require credentials: COPERNICUS_USERNAME and COPERNICUS_PASSWORD are not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}

	workers := o.clampConcurrency(concurrency)
	runID := uuid.New().String()

	log := o.logger.With().Str("run_id", runID).Logger()
	log.Info().
		Int("tasks", len(tasks)).
		Int("workers", workers).
		Str("dir", dir).
		Msg("Batch download started")

	outcomes := make([]Outcome, len(tasks))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				outcomes[idx] = o.runTask(ctx, log, dir, tasks[idx])
			}
		}()
	}
	for i := range tasks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	s := Summarize(outcomes)
	log.Info().
		Int("succeeded", s.Succeeded).
		Int("failed", s.Failed).
		Int64("bytes", s.Bytes).
		Msg("Batch download finished")
	return outcomes, nil
}

// RunOne is the single-task convenience path.
func (o *Orchestrator) RunOne(ctx context.Context, dir string, task Task) (Outcome, error) {
	outcomes, err := o.Run(ctx, dir, []Task{task}, 1)
	if err != nil {
		return Outcome{}, err
	}
	return outcomes[0], nil
}

func (o *Orchestrator) clampConcurrency(n int) int {
	if n <= 0 {
		n = o.cfg.Concurrency
	}
	if n > o.cfg.MaxConcurrency {
		n = o.cfg.MaxConcurrency
	}
	if n < 1 {
		n = 1
	}
	return n
}

// runTask executes one task through the retry policy. A canceled context
// fails the task quickly so queued work still reports an outcome.
func (o *Orchestrator) runTask(ctx context.Context, log zerolog.Logger, dir string, task Task) Outcome {
	started := o.clock.Now()
	out := Outcome{ProductID: task.ProductID, Kind: task.Kind}

	base := pathutil.BaseName(task.Mission, task.ProductID, started)
	dest := filepath.Join(dir, pathutil.FileName(base, task.Kind))

	var authUsed, netUsed int
	delay := o.cfg.Policy.InitialDelay

	for {
		out.Attempts++

		err := o.attempt(ctx, task, dest, &out)
		if err == nil {
			out.Success = true
			out.Path = dest
			out.Elapsed = o.clock.Since(started)
			log.Info().
				Str("product_id", task.ProductID).
				Str("kind", string(task.Kind)).
				Int64("bytes", out.Bytes).
				Int("attempts", out.Attempts).
				Msg("Task complete")
			return out
		}

		if ctx.Err() != nil {
			return o.fail(&out, started, err, cdse.ErrorNetwork, log)
		}

		kind := cdse.KindOf(err)
		switch o.cfg.Policy.classify(kind, authUsed, netUsed) {
		case stepRefreshAndRetry:
			authUsed++
			log.Warn().
				Str("product_id", task.ProductID).
				Err(err).
				Msg("Auth rejected, refreshing credential and retrying")
			// A failed refresh surfaces again on the next attempt's
			// token acquisition.
			_, _ = o.creds.ForceRefresh(ctx)

		case stepBackoffAndRetry:
			netUsed++
			log.Warn().
				Str("product_id", task.ProductID).
				Dur("backoff", delay).
				Err(err).
				Msg("Transient failure, backing off before retry")
			select {
			case <-o.clock.After(delay):
			case <-ctx.Done():
				return o.fail(&out, started, ctx.Err(), cdse.ErrorNetwork, log)
			}
			delay = o.cfg.Policy.next(delay)

		default:
			return o.fail(&out, started, err, kind, log)
		}
	}
}

// attempt performs one acquire-resolve-fetch cycle for a task.
func (o *Orchestrator) attempt(ctx context.Context, task Task, dest string, out *Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	urls, err := o.urlsFor(ctx, task)
	if err != nil {
		return err
	}

	cred, err := o.creds.Token(ctx)
	if err != nil {
		return err
	}

	bytes, served, err := o.transfer.FetchAny(ctx, urls, dest, cred)
	if err != nil {
		return err
	}
	out.Bytes, out.URL = bytes, served
	return nil
}

// urlsFor resolves the endpoint chain for a task's rendition. Quicklooks
// need a catalog probe; the other kinds are assembled directly.
func (o *Orchestrator) urlsFor(ctx context.Context, task Task) ([]string, error) {
	switch task.Kind {
	case pathutil.KindQuicklook:
		url, err := o.client.QuicklookURL(ctx, task.ProductID)
		if err != nil {
			return nil, err
		}
		return []string{url}, nil
	case pathutil.KindCompressed:
		return o.client.CompressedDownloadURLs(task.ProductID), nil
	default:
		return o.client.ProductDownloadURLs(task.ProductID), nil
	}
}

func (o *Orchestrator) fail(out *Outcome, started time.Time, err error, kind cdse.ErrorKind, log zerolog.Logger) Outcome {
	out.Err = err
	out.Reason = kind.String()
	out.Elapsed = o.clock.Since(started)
	log.Error().
		Str("product_id", out.ProductID).
		Str("kind", string(out.Kind)).
		Str("reason", out.Reason).
		Int("attempts", out.Attempts).
		Err(err).
		Msg("Task failed")
	return *out
}
