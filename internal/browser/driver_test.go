package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptions_ApplyDefaults(t *testing.T) {
	o := Options{}
	o.applyDefaults()
	assert.Equal(t, DefaultTimeout, o.Timeout)
	assert.Equal(t, DefaultViewportWidth, o.Viewport.Width)
	assert.Equal(t, DefaultViewportHeight, o.Viewport.Height)
	assert.Equal(t, ".", o.ScreenshotDir)

	o = Options{Timeout: 5 * time.Second, ScreenshotDir: "/tmp/shots", Viewport: Viewport{Width: 800, Height: 600}}
	o.applyDefaults()
	assert.Equal(t, 5*time.Second, o.Timeout)
	assert.Equal(t, 800, o.Viewport.Width)
	assert.Equal(t, "/tmp/shots", o.ScreenshotDir)
}
