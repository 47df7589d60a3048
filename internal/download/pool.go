package download

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/fetcharr/fetcharr/internal/provider"
	"github.com/fetcharr/fetcharr/internal/sites"
)

// DefaultConcurrency is the worker count when the config sets none.
const DefaultConcurrency = 3

// transferAttempts bounds retries against one resolved provider before
// the worker excludes it and re-resolves.
const transferAttempts = 2

// StreamSource lists the hoster embeds for an episode page URL.
type StreamSource interface {
	Streams(ctx context.Context, episodeURL string) ([]sites.Stream, error)
}

// LinkResolver turns hoster embeds into a direct media URL.
type LinkResolver interface {
	Resolve(ctx context.Context, streams []sites.Stream, language, preferred string, exclude map[string]bool, referer string) (*provider.Resolved, error)
}

// Pool runs the download workers. Each worker claims the oldest queued
// job, resolves a provider, transfers the file and finalizes the job.
type Pool struct {
	queue       *Queue
	streams     StreamSource
	resolver    LinkResolver
	transferrer Transferrer
	dir         string
	concurrency int
	log         *slog.Logger
}

// NewPool creates a pool writing into dir with the given concurrency.
func NewPool(queue *Queue, streams StreamSource, resolver LinkResolver, transferrer Transferrer, dir string, concurrency int, log *slog.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Pool{
		queue:       queue,
		streams:     streams,
		resolver:    resolver,
		transferrer: transferrer,
		dir:         dir,
		concurrency: concurrency,
		log:         log,
	}
}

// Run blocks until ctx is cancelled. At most `concurrency` transfers
// are in flight at any time; queued jobs beyond that wait their turn.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		worker := i
		g.Go(func() error {
			p.runWorker(ctx, worker)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) runWorker(ctx context.Context, worker int) {
	log := p.log.With("worker", worker)
	for {
		job, ok := p.queue.Claim()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-p.queue.Notify():
				continue
			}
		}
		log.Debug("job claimed", "job_id", job.ID, "series", job.SeriesName)
		p.process(ctx, job)
		if ctx.Err() != nil {
			return
		}
	}
}

// process drives one job to a terminal state.
func (p *Pool) process(ctx context.Context, job *Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if p.queue.RegisterCancel(job.ID, cancel) {
		p.queue.MarkCancelled(job.ID)
		return
	}
	defer p.queue.UnregisterCancel(job.ID)

	streams, err := p.streams.Streams(jobCtx, job.SourceURL)
	if err != nil {
		p.finish(jobCtx, job, err)
		return
	}

	// A provider whose transfer fails mid-flight is excluded and the
	// job re-resolves on the next best hoster.
	exclude := make(map[string]bool)
	var lastTransferErr error

	for {
		resolved, err := p.resolver.Resolve(jobCtx, streams, job.Language, job.preferred, exclude, job.SourceURL)
		if err != nil {
			if lastTransferErr != nil {
				err = fmt.Errorf("%w (last transfer: %v)", err, lastTransferErr)
			}
			p.finish(jobCtx, job, err)
			return
		}

		p.queue.SetProvider(job.ID, resolved.Provider)
		dest := p.destPath(job)
		p.queue.SetCurrentEpisode(job.ID, filepath.Base(dest))

		var written int64
		for attempt := 1; attempt <= transferAttempts; attempt++ {
			written, err = p.transferrer.Transfer(jobCtx, resolved.DirectURL, resolved.EmbedURL, dest,
				func(downloaded, size, speed int64) {
					p.queue.SetProgress(job.ID, downloaded, size, speed)
				})
			if err == nil || jobCtx.Err() != nil {
				break
			}
			if attempt < transferAttempts {
				p.log.Warn("transfer failed, retrying provider",
					"job_id", job.ID, "provider", resolved.Provider, "attempt", attempt, "error", err)
			}
		}
		if err == nil {
			p.log.Info("transfer done", "job_id", job.ID, "provider", resolved.Provider, "bytes", written)
			p.queue.Complete(job.ID, dest)
			return
		}
		if jobCtx.Err() != nil {
			p.queue.MarkCancelled(job.ID)
			return
		}

		p.log.Warn("transfer failed, trying next provider",
			"job_id", job.ID, "provider", resolved.Provider, "error", err)
		exclude[resolved.Provider] = true
		lastTransferErr = err
	}
}

// finish routes a processing error to cancelled or failed.
func (p *Pool) finish(jobCtx context.Context, job *Job, err error) {
	if jobCtx.Err() != nil {
		p.queue.MarkCancelled(job.ID)
		return
	}
	p.queue.Fail(job.ID, err)
}

// destPath lays files out as <dir>/<series>/Season N/<title> - SxxEyy.mp4,
// with movies flat under a Movies folder.
func (p *Pool) destPath(job *Job) string {
	series := sanitize(job.SeriesName)
	if series == "" {
		series = "Unknown"
	}
	if job.Movie > 0 {
		name := fmt.Sprintf("%s - Movie %02d.mp4", series, job.Movie)
		return filepath.Join(p.dir, series, "Movies", name)
	}
	name := fmt.Sprintf("%s - S%02dE%02d.mp4", series, job.Season, job.Episode)
	return filepath.Join(p.dir, series, fmt.Sprintf("Season %d", job.Season), name)
}

var pathReplacer = strings.NewReplacer(
	"/", "-", "\\", "-", ":", "-", "*", "", "?", "", "\"", "",
	"<", "", ">", "", "|", "",
)

func sanitize(name string) string {
	return strings.TrimSpace(pathReplacer.Replace(name))
}
