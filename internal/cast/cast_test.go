package cast

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	castproto "github.com/vishen/go-chromecast/cast"
)

type fakeApp struct {
	started   bool
	loadedURL string
	paused    bool
	seekTo    float32
	volume    float32
	closed    bool
	updated   int

	startErr error
	loadErr  error
}

func (f *fakeApp) Start(addr string, port int) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeApp) Load(mediaURL string, _ int, _ string, _, _, _ bool) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loadedURL = mediaURL
	return nil
}

func (f *fakeApp) Pause() error   { f.paused = true; return nil }
func (f *fakeApp) Unpause() error { f.paused = false; return nil }

func (f *fakeApp) SeekToTime(seconds float32) error {
	f.seekTo = seconds
	return nil
}

func (f *fakeApp) SetVolume(level float32) error {
	f.volume = level
	return nil
}

func (f *fakeApp) Update() error { f.updated++; return nil }

func (f *fakeApp) Status() (*castproto.Application, *castproto.Media, *castproto.Volume) {
	state := "PLAYING"
	if f.paused {
		state = "PAUSED"
	}
	media := &castproto.Media{PlayerState: state, CurrentTime: 42}
	media.Media.Duration = 1440
	return nil, media, &castproto.Volume{Level: 0.8}
}

func (f *fakeApp) Close(_ bool) error { f.closed = true; return nil }

func livingRoom() Device {
	return Device{UUID: "uuid-1", Name: "Living Room", Addr: "192.168.1.50", Port: 8009}
}

func testManager(t *testing.T, apps *[]*fakeApp, devices ...Device) *Manager {
	t.Helper()
	return NewManager(slog.New(slog.DiscardHandler),
		WithDiscoverer(func(_ context.Context) ([]Device, error) {
			return devices, nil
		}),
		WithAppFactory(func() App {
			app := &fakeApp{}
			*apps = append(*apps, app)
			return app
		}),
	)
}

func TestDevices(t *testing.T) {
	var apps []*fakeApp
	m := testManager(t, &apps,
		Device{UUID: "b", Name: "Bedroom"},
		Device{UUID: "a", Name: "Attic"},
	)

	devices, err := m.Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "Attic", devices[0].Name)
}

func TestDevicesEmpty(t *testing.T) {
	var apps []*fakeApp
	m := testManager(t, &apps)

	_, err := m.Devices(context.Background())
	assert.ErrorIs(t, err, ErrNoDevices)
}

func TestStartSession(t *testing.T) {
	var apps []*fakeApp
	m := testManager(t, &apps, livingRoom())

	st, err := m.Start(context.Background(), "uuid-1", "http://host/ep.mp4", "Naruto E1", 0)
	require.NoError(t, err)

	require.Len(t, apps, 1)
	assert.True(t, apps[0].started)
	assert.Equal(t, "http://host/ep.mp4", apps[0].loadedURL)

	assert.NotEmpty(t, st.SessionID)
	assert.Equal(t, "Living Room", st.DeviceName)
	assert.Equal(t, "PLAYING", st.PlayerState)
	assert.InDelta(t, 42, st.CurrentTime, 0.01)
	assert.InDelta(t, 1440, st.Duration, 0.01)
	assert.InDelta(t, 0.8, st.Volume, 0.01)
}

func TestStartUnknownDevice(t *testing.T) {
	var apps []*fakeApp
	m := testManager(t, &apps, livingRoom())

	_, err := m.Start(context.Background(), "nope", "http://host/ep.mp4", "x", 0)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Empty(t, apps)
}

func TestStartReplacesExistingSession(t *testing.T) {
	var apps []*fakeApp
	m := testManager(t, &apps, livingRoom())

	first, err := m.Start(context.Background(), "uuid-1", "http://host/a.mp4", "a", 0)
	require.NoError(t, err)
	second, err := m.Start(context.Background(), "uuid-1", "http://host/b.mp4", "b", 0)
	require.NoError(t, err)

	require.Len(t, apps, 2)
	assert.True(t, apps[0].closed)
	assert.Equal(t, "http://host/b.mp4", apps[1].loadedURL)
	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.Len(t, m.Sessions(), 1)
}

func TestStartLoadFailureClosesApp(t *testing.T) {
	var apps []*fakeApp
	m := NewManager(slog.New(slog.DiscardHandler),
		WithDiscoverer(func(_ context.Context) ([]Device, error) {
			return []Device{livingRoom()}, nil
		}),
		WithAppFactory(func() App {
			app := &fakeApp{loadErr: errors.New("load refused")}
			apps = append(apps, app)
			return app
		}),
	)

	_, err := m.Start(context.Background(), "uuid-1", "http://host/a.mp4", "a", 0)
	require.Error(t, err)
	require.Len(t, apps, 1)
	assert.True(t, apps[0].closed)
	assert.Empty(t, m.Sessions())
}

func TestTransportControls(t *testing.T) {
	var apps []*fakeApp
	m := testManager(t, &apps, livingRoom())

	_, err := m.Start(context.Background(), "uuid-1", "http://host/a.mp4", "a", 0)
	require.NoError(t, err)

	require.NoError(t, m.Pause("uuid-1"))
	assert.True(t, apps[0].paused)

	st, err := m.Status("uuid-1")
	require.NoError(t, err)
	assert.Equal(t, "PAUSED", st.PlayerState)
	assert.Equal(t, 1, apps[0].updated)

	require.NoError(t, m.Resume("uuid-1"))
	assert.False(t, apps[0].paused)

	require.NoError(t, m.Seek("uuid-1", 120.5))
	assert.InDelta(t, 120.5, apps[0].seekTo, 0.01)

	require.NoError(t, m.SetVolume("uuid-1", 0.35))
	assert.InDelta(t, 0.35, apps[0].volume, 0.001)

	// Out-of-range levels are clamped.
	require.NoError(t, m.SetVolume("uuid-1", 1.7))
	assert.InDelta(t, 1.0, apps[0].volume, 0.001)

	require.NoError(t, m.Stop("uuid-1"))
	assert.True(t, apps[0].closed)
	assert.ErrorIs(t, m.Pause("uuid-1"), ErrNoSession)
}

func TestTransportWithoutSession(t *testing.T) {
	var apps []*fakeApp
	m := testManager(t, &apps, livingRoom())

	assert.ErrorIs(t, m.Pause("uuid-1"), ErrNoSession)
	assert.ErrorIs(t, m.Resume("uuid-1"), ErrNoSession)
	assert.ErrorIs(t, m.Seek("uuid-1", 10), ErrNoSession)
	assert.ErrorIs(t, m.SetVolume("uuid-1", 0.5), ErrNoSession)
	assert.ErrorIs(t, m.Stop("uuid-1"), ErrNoSession)
	_, err := m.Status("uuid-1")
	assert.ErrorIs(t, err, ErrNoSession)
}
