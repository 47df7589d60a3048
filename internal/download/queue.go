package download

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// defaultHistoryLimit caps the retained terminal jobs. Older entries
// are dropped oldest-first; group counters are unaffected by trimming.
const defaultHistoryLimit = 50

type groupState struct {
	cover     string
	total     int
	completed int
	failed    int
	cancelled int
}

// Queue is the in-memory job queue. One mutex guards all state, so
// invariants like completed <= total hold under concurrent workers.
type Queue struct {
	mu      sync.Mutex
	nextID  int64
	jobs    map[int64]*Job
	order   []int64
	history []*Job
	groups  map[string]*groupState

	// cancels maps a downloading job to its context cancel; requested
	// marks jobs whose cancel arrived before the worker registered one.
	cancels   map[int64]func()
	requested map[int64]bool

	notify       chan struct{}
	historyLimit int
	log          *slog.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithHistoryLimit overrides how many terminal jobs are retained.
func WithHistoryLimit(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.historyLimit = n
		}
	}
}

// NewQueue creates an empty queue.
func NewQueue(log *slog.Logger, opts ...QueueOption) *Queue {
	q := &Queue{
		jobs:         make(map[int64]*Job),
		groups:       make(map[string]*groupState),
		cancels:      make(map[int64]func()),
		requested:    make(map[int64]bool),
		notify:       make(chan struct{}, 1),
		historyLimit: defaultHistoryLimit,
		log:          log,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Notify signals when new work is queued. The channel carries no data;
// workers re-check the queue on every tick.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

// Enqueue adds a job. A request whose source URL matches a queued or
// downloading job is rejected with ErrDuplicate; terminal jobs do not
// block re-enqueueing.
func (q *Queue) Enqueue(req Request) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, j := range q.jobs {
		if j.SourceURL == req.SourceURL {
			return nil, fmt.Errorf("%s: %w", req.SourceURL, ErrDuplicate)
		}
	}

	q.nextID++
	j := &Job{
		ID:         q.nextID,
		Title:      req.Title,
		SeriesName: req.SeriesName,
		Season:     req.Season,
		Episode:    req.Episode,
		Movie:      req.Movie,
		SourceURL:  req.SourceURL,
		Site:       req.Site,
		Language:   req.Language,
		Status:     StatusQueued,
		CreatedAt:  time.Now(),
		preferred:  req.Provider,
	}
	q.jobs[j.ID] = j
	q.order = append(q.order, j.ID)

	g := q.groups[j.SeriesName]
	if g == nil {
		g = &groupState{}
		q.groups[j.SeriesName] = g
	}
	g.total++
	if g.cover == "" {
		g.cover = req.Cover
	}

	q.log.Info("job queued", "job_id", j.ID, "series", j.SeriesName,
		"season", j.Season, "episode", j.Episode, "language", j.Language)
	q.wake()
	return q.stampedCloneLocked(j), nil
}

// Claim pops the oldest queued job and marks it downloading. It returns
// false when nothing is queued.
func (q *Queue) Claim() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.order) == 0 {
		return nil, false
	}
	id := q.order[0]
	q.order = q.order[1:]

	j, ok := q.jobs[id]
	if !ok {
		return nil, false
	}
	now := time.Now()
	j.Status = StatusDownloading
	j.StartedAt = &now

	// The notify channel is coalesced, so chain a wakeup while more
	// work remains for the other workers.
	if len(q.order) > 0 {
		q.wake()
	}
	return q.stampedCloneLocked(j), true
}

// RegisterCancel stores the cancel func for a running job. It returns
// true when a cancel request already arrived, in which case the worker
// must abandon the job immediately.
func (q *Queue) RegisterCancel(id int64, cancel func()) (alreadyCancelled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.requested[id] {
		return true
	}
	q.cancels[id] = cancel
	return false
}

// UnregisterCancel removes the cancel func once a job leaves the worker.
func (q *Queue) UnregisterCancel(id int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.cancels, id)
	delete(q.requested, id)
}

// Cancel requests cancellation of one job. Queued jobs finish
// immediately; downloading jobs are cancelled cooperatively and reach
// the cancelled state once their worker observes the aborted context.
func (q *Queue) Cancel(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelLocked(id)
}

func (q *Queue) cancelLocked(id int64) error {
	j, ok := q.jobs[id]
	if !ok {
		for _, h := range q.history {
			if h.ID == id {
				return fmt.Errorf("job %d: %w", id, ErrNotCancellable)
			}
		}
		return fmt.Errorf("job %d: %w", id, ErrNotFound)
	}

	switch j.Status {
	case StatusQueued:
		q.removeFromOrder(id)
		q.finalizeLocked(j, StatusCancelled, "", nil)
	case StatusDownloading:
		q.requested[id] = true
		if cancel, ok := q.cancels[id]; ok {
			cancel()
		}
	}
	return nil
}

// CancelGroup cancels every non-terminal job of a series and returns
// how many jobs were affected.
func (q *Queue) CancelGroup(series string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ids []int64
	for id, j := range q.jobs {
		if j.SeriesName == series {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		_ = q.cancelLocked(id)
	}
	return len(ids)
}

// SetProgress updates transfer accounting for a running job. Progress
// is a high-water mark: a retry that restarts the byte counter never
// moves the reported percentage backwards.
func (q *Queue) SetProgress(id int64, downloaded, size, speed int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok || j.Status != StatusDownloading {
		return
	}
	j.Downloaded = downloaded
	if size > 0 {
		j.Size = size
		pct := min(float64(downloaded)/float64(size)*100, 100)
		// The per-transfer figure follows the byte counter, including a
		// restart; the overall figure never moves backwards.
		j.EpisodeProgress = pct
		if pct > j.Progress {
			j.Progress = pct
		}
	}
	j.Speed = speed
	if speed > 0 && size > downloaded {
		j.ETA = (size - downloaded) / speed
	} else {
		j.ETA = 0
	}
}

// SetProvider records which hoster is serving the transfer.
func (q *Queue) SetProvider(id int64, provider string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.jobs[id]; ok {
		j.Provider = provider
	}
}

// SetCurrentEpisode updates the job's human-readable status line,
// typically the file name being transferred.
func (q *Queue) SetCurrentEpisode(id int64, line string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.jobs[id]; ok {
		j.CurrentEpisode = line
	}
}

// Complete marks a job done and records the written file.
func (q *Queue) Complete(id int64, filePath string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.jobs[id]; ok {
		j.Progress = 100
		q.finalizeLocked(j, StatusCompleted, filePath, nil)
	}
}

// Fail marks a job failed with its cause.
func (q *Queue) Fail(id int64, cause error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.jobs[id]; ok {
		q.finalizeLocked(j, StatusFailed, "", cause)
	}
}

// MarkCancelled finishes a downloading job whose worker observed the
// cancelled context.
func (q *Queue) MarkCancelled(id int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.jobs[id]; ok {
		q.finalizeLocked(j, StatusCancelled, "", nil)
	}
}

func (q *Queue) finalizeLocked(j *Job, status Status, filePath string, cause error) {
	if !j.Status.CanTransitionTo(status) && j.Status != status {
		return
	}
	now := time.Now()
	j.Status = status
	j.TerminalAt = &now
	j.Speed = 0
	j.ETA = 0
	if filePath != "" {
		j.FilePath = filePath
	}
	if cause != nil {
		j.Error = cause.Error()
		j.CurrentEpisode = cause.Error()
	}

	if g, ok := q.groups[j.SeriesName]; ok {
		switch status {
		case StatusCompleted:
			g.completed++
		case StatusFailed:
			g.failed++
		case StatusCancelled:
			g.cancelled++
		}
	}

	delete(q.jobs, j.ID)
	delete(q.cancels, j.ID)
	delete(q.requested, j.ID)

	q.history = append(q.history, j)
	if len(q.history) > q.historyLimit {
		q.history = q.history[len(q.history)-q.historyLimit:]
	}

	switch status {
	case StatusCompleted:
		q.log.Info("job completed", "job_id", j.ID, "series", j.SeriesName, "file", j.FilePath)
	case StatusFailed:
		q.log.Warn("job failed", "job_id", j.ID, "series", j.SeriesName, "error", j.Error)
	case StatusCancelled:
		q.log.Info("job cancelled", "job_id", j.ID, "series", j.SeriesName)
	}
}

// stampedCloneLocked copies a job with the group counters duplicated
// onto it, so every returned job carries total/completed for its group.
func (q *Queue) stampedCloneLocked(j *Job) *Job {
	c := j.clone()
	if g, ok := q.groups[j.SeriesName]; ok {
		c.TotalEpisodes = g.total
		c.CompletedEpisodes = g.completed
	}
	return c
}

// Get returns a copy of one job, terminal or not.
func (q *Queue) Get(id int64) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if j, ok := q.jobs[id]; ok {
		return q.stampedCloneLocked(j), nil
	}
	for _, j := range q.history {
		if j.ID == id {
			return q.stampedCloneLocked(j), nil
		}
	}
	return nil, fmt.Errorf("job %d: %w", id, ErrNotFound)
}

// Snapshot returns a consistent view of the whole queue. All slices
// hold copies; mutating them cannot race with the workers. Slices are
// non-nil so empty lists marshal as [] rather than null.
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := Snapshot{Active: []Job{}, Completed: []Job{}}

	for _, j := range q.jobs {
		snap.Active = append(snap.Active, *q.stampedCloneLocked(j))
	}
	sort.Slice(snap.Active, func(i, k int) bool { return snap.Active[i].ID < snap.Active[k].ID })

	for i := len(q.history) - 1; i >= 0; i-- {
		snap.Completed = append(snap.Completed, *q.stampedCloneLocked(q.history[i]))
	}

	snap.Groups = q.groupsLocked()
	return snap
}

// groupsLocked derives the aggregate group view from the counters and
// the live jobs. Group state is never stored, only computed here.
func (q *Queue) groupsLocked() []Group {
	live := make(map[string]struct {
		downloading int
		queued      int
		progressSum float64
	})
	for _, j := range q.jobs {
		entry := live[j.SeriesName]
		switch j.Status {
		case StatusDownloading:
			entry.downloading++
			entry.progressSum += j.Progress / 100
		case StatusQueued:
			entry.queued++
		}
		live[j.SeriesName] = entry
	}

	names := make([]string, 0, len(q.groups))
	for name := range q.groups {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Group, 0, len(names))
	for _, name := range names {
		g := q.groups[name]
		entry := live[name]

		var status GroupStatus
		switch {
		case entry.downloading > 0:
			status = GroupDownloading
		case entry.queued > 0:
			status = GroupQueued
		case g.completed == g.total:
			status = GroupCompleted
		case g.cancelled > 0:
			status = GroupCancelled
		default:
			status = GroupFailed
		}

		progress := 0.0
		if g.total > 0 {
			progress = (float64(g.completed) + entry.progressSum) / float64(g.total) * 100
		}

		out = append(out, Group{
			Name:      name,
			Cover:     g.cover,
			Status:    status,
			Total:     g.total,
			Completed: g.completed,
			Progress:  min(progress, 100),
		})
	}
	return out
}

func (q *Queue) removeFromOrder(id int64) {
	for i, candidate := range q.order {
		if candidate == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
