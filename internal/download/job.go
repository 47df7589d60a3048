// Package download implements the bounded-concurrency download queue:
// job lifecycle, FIFO dispatch, progress accounting and the worker pool
// that resolves and transfers episodes.
package download

import "time"

// Request describes one episode or movie to enqueue.
type Request struct {
	Title      string `json:"title"`
	SeriesName string `json:"series_name"`
	Season     int    `json:"season"`
	Episode    int    `json:"episode"`
	Movie      int    `json:"movie"`
	SourceURL  string `json:"source_url"`
	Site       string `json:"site"`
	Language   string `json:"language"`
	Provider   string `json:"provider,omitempty"`
	Cover      string `json:"cover,omitempty"`
}

// Job is one unit of download work. Fields are mutated only under the
// queue lock; callers always receive copies.
//
// TotalEpisodes and CompletedEpisodes duplicate the sibling group's
// counters onto every job so a client can render group progress from
// the job list alone. They are restamped on every read.
type Job struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	SeriesName string  `json:"anime_title"`
	Season     int     `json:"season"`
	Episode    int     `json:"episode"`
	Movie      int     `json:"movie,omitempty"`
	SourceURL  string  `json:"source_url"`
	Site       string  `json:"site"`
	Language   string  `json:"language"`
	Provider   string  `json:"provider,omitempty"`
	Status     Status  `json:"status"`
	Progress   float64 `json:"progress_percentage"`
	Speed      int64   `json:"speed"`
	ETA        int64   `json:"eta"`
	Size       int64   `json:"size"`
	Downloaded int64   `json:"downloaded"`
	FilePath   string  `json:"file_path,omitempty"`
	Error      string  `json:"error,omitempty"`

	// EpisodeProgress tracks the active byte transfer and restarts on a
	// provider retry; Progress is the overall high-water mark.
	EpisodeProgress float64 `json:"current_episode_progress"`

	// CurrentEpisode is the human-readable status line: the file being
	// transferred, or the failure message on a failed job.
	CurrentEpisode string `json:"current_episode"`

	TotalEpisodes     int `json:"total_episodes"`
	CompletedEpisodes int `json:"completed_episodes"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	TerminalAt *time.Time `json:"terminal_at"`

	// preferred keeps the provider the client asked for, separate from
	// Provider which records what actually served the transfer.
	preferred string
}

func (j *Job) clone() *Job {
	c := *j
	return &c
}

// Group is the derived aggregate view of all jobs sharing a series name.
type Group struct {
	Name      string      `json:"name"`
	Cover     string      `json:"cover,omitempty"`
	Status    GroupStatus `json:"status"`
	Total     int         `json:"total_episodes"`
	Completed int         `json:"completed_episodes"`
	Progress  float64     `json:"progress"`
}

// Snapshot is a consistent point-in-time view of the queue. Active
// holds queued and downloading jobs together; the client tells them
// apart by status.
type Snapshot struct {
	Active    []Job   `json:"active"`
	Completed []Job   `json:"completed"`
	Groups    []Group `json:"groups"`
}
