// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mobilepilot/api/schemas"
	"github.com/xkilldash9x/mobilepilot/internal/config"
	"github.com/xkilldash9x/mobilepilot/internal/device"
	"github.com/xkilldash9x/mobilepilot/internal/transcript"
)

// fakeRunner answers adb invocations from a table keyed by the joined args.
type fakeRunner map[string]string

func (f fakeRunner) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	if out, ok := f[strings.Join(args, " ")]; ok {
		return []byte(out), nil
	}
	return []byte("error: device not found"), errors.New("exit status 1")
}

const twoDevices = "List of devices attached\nemulator-5554\tdevice\nR58M\tunauthorized\n\n"

// stubDevice leaves a blank screen and a one-button snapshot in each round dir.
type stubDevice struct {
	t    *testing.T
	taps int
}

func (d *stubDevice) ScreenSize(context.Context) (int, int, error) { return 100, 200, nil }

func (d *stubDevice) CaptureScreenshot(_ context.Context, dir string) (string, error) {
	var buf bytes.Buffer
	require.NoError(d.t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 100, 200))))
	path := filepath.Join(dir, device.ScreenshotFile)
	return path, os.WriteFile(path, buf.Bytes(), 0o644)
}

func (d *stubDevice) CaptureUISnapshot(_ context.Context, dir string) (string, error) {
	path := filepath.Join(dir, device.SnapshotFile)
	xml := `<hierarchy><node clickable="true" bounds="[10,10][90,60]"/></hierarchy>`
	return path, os.WriteFile(path, []byte(xml), 0o644)
}

func (d *stubDevice) Tap(context.Context, int, int) error { d.taps++; return nil }

func (d *stubDevice) InjectText(context.Context, string) error { return nil }

func (d *stubDevice) Swipe(context.Context, int, int, schemas.Direction, schemas.Distance) error {
	return nil
}

type scriptedDecider struct{ replies []string }

func (s *scriptedDecider) Decide(context.Context, schemas.DecisionRequest) (string, error) {
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return r, nil
}

func (s *scriptedDecider) Name() string { return "scripted" }

// withSeams swaps the device and decider factories for the test's lifetime.
func withSeams(t *testing.T, runner fakeRunner, dev *stubDevice, dec schemas.Decider) {
	t.Helper()
	origOpts, origDevice, origDecider := deviceOptions, newDevice, newDecider
	t.Cleanup(func() { deviceOptions, newDevice, newDecider = origOpts, origDevice, origDecider })

	deviceOptions = []device.Option{device.WithRunner(runner)}
	if dev != nil {
		newDevice = func(config.DeviceConfig, string, *zap.Logger) schemas.Device { return dev }
	}
	newDecider = func(context.Context, config.LLMConfig, time.Duration, *zap.Logger) (schemas.Decider, error) {
		return dec, nil
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "mobilepilot version "+Version)

	out, err = execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "mobilepilot version "+Version+"\n", out)
}

func TestDevicesCommand(t *testing.T) {
	withSeams(t, fakeRunner{
		"devices":                        twoDevices,
		"-s emulator-5554 shell wm size": "Physical size: 1080x2400\n",
	}, nil, nil)

	out, err := execute(t, "", "devices")
	require.NoError(t, err)
	assert.Contains(t, out, "SERIAL")
	assert.Regexp(t, `emulator-5554\s+1080x2400\s+ready`, out)
	assert.Regexp(t, `R58M\s+-\s+device is unauthorized`, out)
}

func TestDevicesCommandNoDevices(t *testing.T) {
	withSeams(t, fakeRunner{"devices": "List of devices attached\n\n"}, nil, nil)

	out, err := execute(t, "", "devices")
	require.NoError(t, err)
	assert.Contains(t, out, "No devices attached.")
}

func TestRunCommand(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	dir := t.TempDir()
	dev := &stubDevice{t: t}
	dec := &scriptedDecider{replies: []string{
		"Observation: a button\nThought: press it\nAction: tap(1)\nSummary: pressed the button",
		"Observation: done\nThought: finished\nAction: stop\nSummary: finished",
	}}
	withSeams(t, fakeRunner{"devices": twoDevices}, dev, dec)

	out, err := execute(t, "", "run", "--task", "press the button", "--artifact-dir", dir)
	require.NoError(t, err)

	assert.Equal(t, 1, dev.taps)
	assert.Contains(t, out, "press the button")
	assert.Contains(t, out, "STOPPED after 2 round(s)")

	f, err := os.Open(filepath.Join(dir, transcript.FileName))
	require.NoError(t, err)
	defer f.Close()
	task, records, err := transcript.Parse(f)
	require.NoError(t, err)
	assert.Equal(t, "press the button", task)
	assert.Len(t, records, 2)
}

func TestRunCommandPromptsForTask(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	dec := &scriptedDecider{replies: []string{"Observation: o\nThought: t\nAction: stop\nSummary: s"}}
	withSeams(t, fakeRunner{"devices": twoDevices}, &stubDevice{t: t}, dec)

	out, err := execute(t, "open the camera\n", "run", "--artifact-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "Please enter your command: ")
	assert.Contains(t, out, "open the camera")
}

func TestRunCommandFailures(t *testing.T) {
	stop := "Observation: o\nThought: t\nAction: stop\nSummary: s"

	t.Run("missing api key", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		t.Setenv("MOBILEPILOT_LLM_OPENAI_API_KEY", "")
		withSeams(t, fakeRunner{"devices": twoDevices}, &stubDevice{t: t}, &scriptedDecider{replies: []string{stop}})

		_, err := execute(t, "", "run", "--task", "x", "--artifact-dir", t.TempDir())
		assert.ErrorContains(t, err, "api_key is required")
	})

	t.Run("unknown provider", func(t *testing.T) {
		withSeams(t, fakeRunner{"devices": twoDevices}, &stubDevice{t: t}, &scriptedDecider{replies: []string{stop}})

		_, err := execute(t, "", "run", "--task", "x", "--provider", "claude", "--artifact-dir", t.TempDir())
		assert.ErrorContains(t, err, "claude")
	})

	t.Run("no device", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-test")
		withSeams(t, fakeRunner{"devices": "List of devices attached\n\n"}, &stubDevice{t: t}, &scriptedDecider{replies: []string{stop}})

		_, err := execute(t, "", "run", "--task", "x", "--artifact-dir", t.TempDir())
		assert.ErrorIs(t, err, device.ErrNoDevice)
	})

	t.Run("empty task", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-test")
		withSeams(t, fakeRunner{"devices": twoDevices}, &stubDevice{t: t}, &scriptedDecider{replies: []string{stop}})

		_, err := execute(t, "\n", "run", "--artifact-dir", t.TempDir())
		assert.ErrorContains(t, err, "no task given")
	})

	t.Run("malformed reply", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-test")
		dir := t.TempDir()
		withSeams(t, fakeRunner{"devices": twoDevices}, &stubDevice{t: t}, &scriptedDecider{replies: []string{"I think I should tap"}})

		out, err := execute(t, "", "run", "--task", "x", "--artifact-dir", dir)
		assert.ErrorContains(t, err, "round 1 failed during PARSE")
		assert.Contains(t, out, "FAILED after 1 round(s)")
		assert.FileExists(t, filepath.Join(dir, transcript.FileName))
	})
}

func TestPromptTask(t *testing.T) {
	var out bytes.Buffer
	task, err := promptTask(strings.NewReader("  call mom  "), &out)
	require.NoError(t, err)
	assert.Equal(t, "call mom", task)
	assert.Equal(t, "Please enter your command: ", out.String())
}
