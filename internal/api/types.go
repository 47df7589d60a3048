package api

import (
	"github.com/fetcharr/fetcharr/internal/download"
	"github.com/fetcharr/fetcharr/internal/history"
	"github.com/fetcharr/fetcharr/internal/library"
	"github.com/fetcharr/fetcharr/internal/provider"
	"github.com/fetcharr/fetcharr/internal/sites"
	"github.com/fetcharr/fetcharr/internal/subscriptions"
)

// Request bodies

type searchRequest struct {
	Query string   `json:"query"`
	Sites []string `json:"sites"`
}

type directRequest struct {
	URL string `json:"url"`
}

type episodesRequest struct {
	SeriesURL  string `json:"series_url"`
	FolderPath string `json:"folder_path,omitempty"`
}

type downloadRequest struct {
	EpisodeURLs []string `json:"episode_urls"`
	Language    string   `json:"language"`
	Provider    string   `json:"provider,omitempty"`
	AnimeTitle  string   `json:"anime_title"`
	Cover       string   `json:"cover,omitempty"`
}

type cancelGroupRequest struct {
	Name string `json:"name"`
}

type deleteFileRequest struct {
	Path string `json:"path"`
}

type deleteProgressRequest struct {
	File string `json:"file"`
}

type preferenceRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type castStartRequest struct {
	DeviceUUID string `json:"device_uuid"`
	MediaURL   string `json:"media_url,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
	Title      string `json:"title,omitempty"`
	StartTime  int    `json:"start_time,omitempty"`
}

type castControlRequest struct {
	DeviceUUID string  `json:"device_uuid"`
	Action     string  `json:"action"`
	Position   float64 `json:"position,omitempty"`
	Seconds    float64 `json:"seconds,omitempty"`
	Value      float64 `json:"value,omitempty"`
}

type addSubscriptionRequest struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Language string `json:"language,omitempty"`
}

type updateSubscriptionRequest struct {
	Language string `json:"language"`
}

// Response bodies

type searchResponse struct {
	Success bool                 `json:"success"`
	Results []sites.SearchResult `json:"results"`
	Count   int                  `json:"count"`
	Errors  []string             `json:"errors,omitempty"`
}

type directResponse struct {
	Success bool                `json:"success"`
	Result  *sites.SearchResult `json:"result"`
}

type episodesResponse struct {
	Success            bool                       `json:"success"`
	Title              string                     `json:"title"`
	Slug               string                     `json:"slug"`
	Description        string                     `json:"description"`
	AvailableLanguages []string                   `json:"available_languages"`
	Episodes           map[int][]sites.EpisodeRef `json:"episodes"`
	Movies             []sites.MovieRef           `json:"movies"`
}

type popularNewResponse struct {
	Success bool                 `json:"success"`
	Popular []sites.SearchResult `json:"popular"`
	New     []sites.SearchResult `json:"new"`
	Cached  bool                 `json:"cached"`
}

type downloadResponse struct {
	Success       bool    `json:"success"`
	QueueIDs      []int64 `json:"queue_ids"`
	EpisodeCount  int     `json:"episode_count"`
	Skipped       int     `json:"skipped,omitempty"`
	MaxConcurrent int     `json:"max_concurrent"`
}

type queueStatusResponse struct {
	Success bool              `json:"success"`
	Queue   download.Snapshot `json:"queue"`
}

type progressResponse struct {
	Success  bool                     `json:"success"`
	Progress map[string]history.Entry `json:"progress,omitempty"`
	Recent   []history.Entry          `json:"recent,omitempty"`
}

type preferencesResponse struct {
	Success     bool              `json:"success"`
	Preferences map[string]string `json:"preferences"`
}

type filesResponse struct {
	Success bool            `json:"success"`
	Path    string          `json:"path"`
	Entries []library.Entry `json:"entries"`
}

type subscriptionsResponse struct {
	Success       bool                          `json:"success"`
	Subscriptions []*subscriptions.Subscription `json:"subscriptions"`
}

type notificationsResponse struct {
	Success       bool                          `json:"success"`
	Notifications []*subscriptions.Notification `json:"notifications"`
}

type infoResponse struct {
	Success       bool     `json:"success"`
	Version       string   `json:"version"`
	Sites         []string `json:"sites"`
	Providers     []string `json:"providers"`
	MaxConcurrent int      `json:"max_concurrent"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func providerNames() []string {
	out := make([]string, len(provider.DefaultOrder))
	copy(out, provider.DefaultOrder)
	return out
}
