// Package subscriptions tracks followed series in sqlite and raises
// notifications when new episodes appear.
package subscriptions

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the subscriptions package.
var (
	// ErrNotFound is returned when no subscription matches.
	ErrNotFound = errors.New("subscription not found")

	// ErrDuplicate is returned when the series is already subscribed.
	ErrDuplicate = errors.New("already subscribed")
)

// Subscription is one followed series.
type Subscription struct {
	ID            int64      `json:"id"`
	Site          string     `json:"site"`
	Slug          string     `json:"slug"`
	Title         string     `json:"title"`
	URL           string     `json:"url"`
	Language      string     `json:"language,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
}

// Notification is one new-episode event.
type Notification struct {
	ID             int64     `json:"id"`
	SubscriptionID int64     `json:"subscription_id"`
	Title          string    `json:"title"`
	Season         int       `json:"season"`
	Episode        int       `json:"episode"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store provides sqlite access for subscriptions.
type Store struct {
	db *sql.DB
}

// NewStore creates a subscriptions store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Add subscribes to a series.
func (s *Store) Add(sub *Subscription) error {
	res, err := s.db.Exec(`
		INSERT INTO subscriptions (site, slug, title, url, language)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (site, slug) DO NOTHING`,
		sub.Site, sub.Slug, sub.Title, sub.URL, sub.Language)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s/%s: %w", sub.Site, sub.Slug, ErrDuplicate)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	sub.ID = id
	sub.CreatedAt = time.Now()
	return nil
}

// List returns all subscriptions, newest first.
func (s *Store) List() ([]*Subscription, error) {
	rows, err := s.db.Query(`
		SELECT id, site, slug, title, url, language, created_at, last_checked_at
		FROM subscriptions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*Subscription
	for rows.Next() {
		var sub Subscription
		var lastChecked sql.NullTime
		if err := rows.Scan(&sub.ID, &sub.Site, &sub.Slug, &sub.Title, &sub.URL,
			&sub.Language, &sub.CreatedAt, &lastChecked); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		if lastChecked.Valid {
			sub.LastCheckedAt = &lastChecked.Time
		}
		out = append(out, &sub)
	}
	return out, rows.Err()
}

// Remove deletes a subscription and its seen/notification rows.
func (s *Store) Remove(id int64) error {
	res, err := s.db.Exec(`DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("id %d: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateLanguage changes the preferred download language of a
// subscription.
func (s *Store) UpdateLanguage(id int64, language string) error {
	res, err := s.db.Exec(`UPDATE subscriptions SET language = ? WHERE id = ?`, language, id)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("id %d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkChecked stamps the subscription's last check time.
func (s *Store) MarkChecked(id int64, at time.Time) error {
	_, err := s.db.Exec(`UPDATE subscriptions SET last_checked_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("mark checked: %w", err)
	}
	return nil
}

// SeenEpisodes returns the (season, episode) pairs already recorded.
func (s *Store) SeenEpisodes(subscriptionID int64) (map[[2]int]bool, error) {
	rows, err := s.db.Query(`
		SELECT season, episode FROM seen_episodes WHERE subscription_id = ?`,
		subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("query seen: %w", err)
	}
	defer rows.Close()

	out := make(map[[2]int]bool)
	for rows.Next() {
		var season, episode int
		if err := rows.Scan(&season, &episode); err != nil {
			return nil, fmt.Errorf("scan seen: %w", err)
		}
		out[[2]int{season, episode}] = true
	}
	return out, rows.Err()
}

// MarkSeen records episodes without raising notifications, used on the
// first check of a fresh subscription.
func (s *Store) MarkSeen(subscriptionID int64, season, episode int) error {
	_, err := s.db.Exec(`
		INSERT INTO seen_episodes (subscription_id, season, episode)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`,
		subscriptionID, season, episode)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// Notify records a new episode and raises a notification for it.
func (s *Store) Notify(subscriptionID int64, title string, season, episode int) error {
	if err := s.MarkSeen(subscriptionID, season, episode); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO notifications (subscription_id, title, season, episode)
		VALUES (?, ?, ?, ?)`,
		subscriptionID, title, season, episode)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// Notifications lists notifications, optionally only unread, newest first.
func (s *Store) Notifications(unreadOnly bool) ([]*Notification, error) {
	query := `
		SELECT id, subscription_id, title, season, episode, read, created_at
		FROM notifications`
	if unreadOnly {
		query += ` WHERE read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.SubscriptionID, &n.Title, &n.Season,
			&n.Episode, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// MarkNotificationsRead marks every notification read.
func (s *Store) MarkNotificationsRead() error {
	_, err := s.db.Exec(`UPDATE notifications SET read = 1 WHERE read = 0`)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}
