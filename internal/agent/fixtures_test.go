// internal/agent/fixtures_test.go
package agent

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/mobilepilot/api/schemas"
	"github.com/xkilldash9x/mobilepilot/internal/device"
	"github.com/xkilldash9x/mobilepilot/internal/mocks"
)

// homeScreen holds three tappable elements with centres (60,70), (250,70)
// and (180,330).
const homeScreen = `<?xml version="1.0" encoding="UTF-8"?>
<hierarchy rotation="0">
  <node index="0" text="" class="android.widget.FrameLayout" bounds="[0,0][360,640]">
    <node index="0" text="Camera" class="android.widget.TextView" clickable="true" bounds="[10,20][110,120]"/>
    <node index="1" text="Phone" class="android.widget.TextView" clickable="true" bounds="[200,20][300,120]"/>
    <node index="2" text="" class="android.widget.EditText" clickable="true" bounds="[10,300][350,360]"/>
  </node>
</hierarchy>`

// newMockDevice returns a 360x640 device mock.
func newMockDevice(t *testing.T) *mocks.MockDevice {
	t.Helper()
	m := new(mocks.MockDevice)
	m.On("ScreenSize", mock.Anything).Return(360, 640, nil).Maybe()
	return m
}

// blankScreenshot encodes a dark 360x640 PNG.
func blankScreenshot(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 360, 640))
	for y := range 640 {
		for x := range 360 {
			img.Set(x, y, color.RGBA{R: 30, G: 30, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// expectCaptures lets every round capture a dark screenshot and snapshot,
// written into the round directory like a real device would.
func expectCaptures(t *testing.T, m *mocks.MockDevice, snapshot string) {
	t.Helper()
	screenshot := blankScreenshot(t)

	m.On("CaptureScreenshot", mock.Anything, mock.Anything).Return(func(dir string) (string, error) {
		path := filepath.Join(dir, device.ScreenshotFile)
		return path, os.WriteFile(path, screenshot, 0o644)
	}, nil).Maybe()
	m.On("CaptureUISnapshot", mock.Anything, mock.Anything).Return(func(dir string) (string, error) {
		path := filepath.Join(dir, device.SnapshotFile)
		return path, os.WriteFile(path, []byte(snapshot), 0o644)
	}, nil).Maybe()
}

// ctxAwareDevice fails gestures on a cancelled context, as the adb driver does
// when its process is killed.
type ctxAwareDevice struct {
	*mocks.MockDevice
}

func (d ctxAwareDevice) Tap(ctx context.Context, x, y int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.MockDevice.Tap(ctx, x, y)
}

func (d ctxAwareDevice) InjectText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.MockDevice.InjectText(ctx, text)
}

func (d ctxAwareDevice) Swipe(ctx context.Context, x, y int, dir schemas.Direction, dist schemas.Distance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.MockDevice.Swipe(ctx, x, y, dir, dist)
}

func newMockDecider() *mocks.MockDecider {
	return &mocks.MockDecider{ID: "mock:vision"}
}

// reply formats a well-formed decision reply around an action.
func reply(act, summary string) string {
	return "Observation: the home screen\nThought: proceed\nAction: " + act + "\nSummary: " + summary
}
