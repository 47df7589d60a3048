// Package cast manages Chromecast playback sessions: device discovery,
// load, transport control and status polling.
package cast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	castproto "github.com/vishen/go-chromecast/cast"
	"github.com/vishen/go-chromecast/dns"
)

// Sentinel errors for the cast package.
var (
	// ErrNoDevices is returned when discovery finds no Chromecast.
	ErrNoDevices = errors.New("no cast devices found")

	// ErrDeviceNotFound is returned when no discovered device matches
	// the given uuid.
	ErrDeviceNotFound = errors.New("cast device not found")

	// ErrNoSession is returned for transport commands without an active
	// session on the device.
	ErrNoSession = errors.New("no active cast session")
)

// DefaultDiscoverTimeout bounds one mDNS scan.
const DefaultDiscoverTimeout = 5 * time.Second

// Device is one discovered Chromecast.
type Device struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
	Addr string `json:"addr"`
	Port int    `json:"port"`
}

// Status is a poll-friendly view of the player state.
type Status struct {
	SessionID   string  `json:"session_id"`
	DeviceUUID  string  `json:"device_uuid"`
	DeviceName  string  `json:"device_name"`
	MediaURL    string  `json:"media_url"`
	Title       string  `json:"title"`
	PlayerState string  `json:"player_state"`
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
	Volume      float64 `json:"volume"`
	Muted       bool    `json:"muted"`
}

// App is the transport surface of one Chromecast connection.
type App interface {
	Start(addr string, port int) error
	Load(mediaURL string, startTime int, contentType string, transcode, detach, forceDetach bool) error
	Pause() error
	Unpause() error
	SeekToTime(seconds float32) error
	SetVolume(level float32) error
	Update() error
	Status() (*castproto.Application, *castproto.Media, *castproto.Volume)
	Close(stopMedia bool) error
}

// Discoverer scans the network for devices.
type Discoverer func(ctx context.Context) ([]Device, error)

// session pairs a device with its live connection.
type session struct {
	id       string
	device   Device
	app      App
	mediaURL string
	title    string
}

// Manager owns at most one session per device.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session

	newApp          func() App
	discover        Discoverer
	discoverTimeout time.Duration
	log             *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithAppFactory replaces the connection factory, used by tests.
func WithAppFactory(f func() App) ManagerOption {
	return func(m *Manager) { m.newApp = f }
}

// WithDiscoverer replaces mDNS discovery, used by tests.
func WithDiscoverer(d Discoverer) ManagerOption {
	return func(m *Manager) { m.discover = d }
}

// WithDiscoverTimeout bounds the default mDNS scan.
func WithDiscoverTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.discoverTimeout = d
		}
	}
}

// NewManager creates a cast session manager.
func NewManager(log *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions:        make(map[string]*session),
		newApp:          newChromecastApp,
		discoverTimeout: DefaultDiscoverTimeout,
		log:             log,
	}
	m.discover = func(ctx context.Context) ([]Device, error) {
		return discoverDNS(ctx, m.discoverTimeout)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Devices scans for Chromecasts on the local network.
func (m *Manager) Devices(ctx context.Context) ([]Device, error) {
	devices, err := m.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	sort.Slice(devices, func(i, k int) bool { return devices[i].Name < devices[k].Name })
	return devices, nil
}

// Start connects to a device and loads mediaURL. An existing session on
// the same device is replaced.
func (m *Manager) Start(ctx context.Context, deviceUUID, mediaURL, title string, startTime int) (*Status, error) {
	devices, err := m.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	var device *Device
	for i := range devices {
		if devices[i].UUID == deviceUUID {
			device = &devices[i]
			break
		}
	}
	if device == nil {
		return nil, fmt.Errorf("%s: %w", deviceUUID, ErrDeviceNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.sessions[deviceUUID]; ok {
		_ = old.app.Close(true)
		delete(m.sessions, deviceUUID)
	}

	app := m.newApp()
	if err := app.Start(device.Addr, device.Port); err != nil {
		return nil, fmt.Errorf("connect %s: %w", device.Name, err)
	}
	if err := app.Load(mediaURL, startTime, "video/mp4", false, false, false); err != nil {
		_ = app.Close(false)
		return nil, fmt.Errorf("load media: %w", err)
	}

	s := &session{id: uuid.NewString(), device: *device, app: app, mediaURL: mediaURL, title: title}
	m.sessions[deviceUUID] = s

	m.log.Info("cast session started", "device", device.Name, "title", title)
	return m.statusLocked(s), nil
}

// Pause pauses playback on the device.
func (m *Manager) Pause(deviceUUID string) error {
	return m.withSession(deviceUUID, func(s *session) error { return s.app.Pause() })
}

// Resume resumes playback on the device.
func (m *Manager) Resume(deviceUUID string) error {
	return m.withSession(deviceUUID, func(s *session) error { return s.app.Unpause() })
}

// Seek jumps to an absolute position in seconds.
func (m *Manager) Seek(deviceUUID string, seconds float64) error {
	return m.withSession(deviceUUID, func(s *session) error {
		return s.app.SeekToTime(float32(seconds))
	})
}

// SetVolume sets the device volume. level is 0.0 to 1.0.
func (m *Manager) SetVolume(deviceUUID string, level float64) error {
	return m.withSession(deviceUUID, func(s *session) error {
		return s.app.SetVolume(float32(min(max(level, 0), 1)))
	})
}

// Stop ends the session and disconnects from the device.
func (m *Manager) Stop(deviceUUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[deviceUUID]
	if !ok {
		return fmt.Errorf("%s: %w", deviceUUID, ErrNoSession)
	}
	delete(m.sessions, deviceUUID)

	if err := s.app.Close(true); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	m.log.Info("cast session stopped", "device", s.device.Name)
	return nil
}

// Status refreshes and returns the player state for one device.
func (m *Manager) Status(deviceUUID string) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[deviceUUID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", deviceUUID, ErrNoSession)
	}
	if err := s.app.Update(); err != nil {
		return nil, fmt.Errorf("status update: %w", err)
	}
	return m.statusLocked(s), nil
}

// Sessions lists the status of every active session.
func (m *Manager) Sessions() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Status, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *m.statusLocked(s))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].DeviceName < out[k].DeviceName })
	return out
}

func (m *Manager) withSession(deviceUUID string, fn func(*session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[deviceUUID]
	if !ok {
		return fmt.Errorf("%s: %w", deviceUUID, ErrNoSession)
	}
	return fn(s)
}

func (m *Manager) statusLocked(s *session) *Status {
	st := &Status{
		SessionID:  s.id,
		DeviceUUID: s.device.UUID,
		DeviceName: s.device.Name,
		MediaURL:   s.mediaURL,
		Title:      s.title,
	}

	_, media, volume := s.app.Status()
	if media != nil {
		st.PlayerState = media.PlayerState
		st.CurrentTime = float64(media.CurrentTime)
		st.Duration = float64(media.Media.Duration)
	}
	if volume != nil {
		st.Volume = float64(volume.Level)
		st.Muted = volume.Muted
	}
	return st
}

// discoverDNS runs one bounded mDNS scan.
func discoverDNS(ctx context.Context, timeout time.Duration) ([]Device, error) {
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries, err := dns.DiscoverCastDNSEntries(scanCtx, nil)
	if err != nil {
		return nil, err
	}

	var devices []Device
	for entry := range entries {
		devices = append(devices, Device{
			UUID: entry.UUID,
			Name: entry.DeviceName,
			Addr: entry.AddrV4.String(),
			Port: entry.Port,
		})
	}
	return devices, nil
}
