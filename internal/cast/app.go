package cast

import (
	"github.com/vishen/go-chromecast/application"
	castproto "github.com/vishen/go-chromecast/cast"
)

// chromecastApp adapts application.Application to the App interface.
type chromecastApp struct {
	app *application.Application
}

func newChromecastApp() App {
	return &chromecastApp{app: application.NewApplication()}
}

func (c *chromecastApp) Start(addr string, port int) error {
	return c.app.Start(addr, port)
}

func (c *chromecastApp) Load(mediaURL string, startTime int, contentType string, transcode, detach, forceDetach bool) error {
	return c.app.Load(mediaURL, startTime, contentType, transcode, detach, forceDetach)
}

func (c *chromecastApp) Pause() error   { return c.app.Pause() }
func (c *chromecastApp) Unpause() error { return c.app.Unpause() }

func (c *chromecastApp) SeekToTime(seconds float32) error {
	return c.app.SeekToTime(seconds)
}

func (c *chromecastApp) SetVolume(level float32) error {
	return c.app.SetVolume(level)
}

func (c *chromecastApp) Update() error { return c.app.Update() }

func (c *chromecastApp) Status() (*castproto.Application, *castproto.Media, *castproto.Volume) {
	return c.app.Status()
}

func (c *chromecastApp) Close(stopMedia bool) error {
	return c.app.Close(stopMedia)
}
