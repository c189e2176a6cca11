// Package device drives an Android phone over the Android Debug Bridge.
package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/xkilldash9x/mobilepilot/api/schemas"
	"github.com/xkilldash9x/mobilepilot/internal/config"
	"go.uber.org/zap"
)

// Local file names written into the capture directory.
const (
	ScreenshotFile = "screenshot_before.png"
	SnapshotFile   = "xml.xml"
)

// execCommandContext is a variable to allow mocking in tests.
var execCommandContext = exec.CommandContext

// ErrCommunication is matched by every *CommunicationError.
var ErrCommunication = errors.New("device communication failed")

// CommunicationError reports a failed adb invocation.
type CommunicationError struct {
	Op     string
	Args   []string
	Output string
	Err    error
}

func (e *CommunicationError) Error() string {
	msg := fmt.Sprintf("adb %s failed: %v", e.Op, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *CommunicationError) Unwrap() error { return e.Err }

func (e *CommunicationError) Is(target error) bool { return target == ErrCommunication }

// Runner executes a program and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs real processes.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := execCommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stderr.Bytes(), err
	}
	return stdout.Bytes(), nil
}

// Option configures an ADB driver or a device listing.
type Option func(*options)

type options struct {
	runner Runner
	logger *zap.Logger
}

// WithRunner replaces the process runner, typically with a fake in tests.
func WithRunner(r Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithLogger sets the logger used for command tracing.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{runner: execRunner{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ADB implements schemas.Device for one attached phone.
type ADB struct {
	path          string
	serial        string
	remoteDir     string
	swipeDuration int
	runner        Runner
	logger        *zap.Logger

	mu            sync.Mutex
	width, height int
}

var _ schemas.Device = (*ADB)(nil)

// NewADB creates a driver for serial. An empty serial addresses the only
// attached device.
func NewADB(cfg config.DeviceConfig, serial string, opts ...Option) *ADB {
	o := buildOptions(opts)
	remote := cfg.RemoteDir
	if remote == "" {
		remote = "/sdcard"
	}
	return &ADB{
		path:          cfg.ADBPath,
		serial:        serial,
		remoteDir:     strings.TrimRight(remote, "/"),
		swipeDuration: cfg.SwipeDurationMs,
		runner:        o.runner,
		logger:        o.logger.Named("adb").With(zap.String("serial", serial)),
	}
}

// Serial reports the device this driver addresses.
func (a *ADB) Serial() string { return a.serial }

func (a *ADB) run(ctx context.Context, op string, args ...string) (string, error) {
	full := args
	if a.serial != "" {
		full = append([]string{"-s", a.serial}, args...)
	}
	a.logger.Debug("Running adb command.", zap.String("op", op), zap.Strings("args", full))
	out, err := a.runner.Run(ctx, a.path, full...)
	if err != nil {
		return "", &CommunicationError{Op: op, Args: full, Output: string(out), Err: err}
	}
	return string(out), nil
}

var sizeRe = regexp.MustCompile(`(Physical|Override) size:\s*(\d+)x(\d+)`)

// ScreenSize reports the display size, preferring an override size when one
// is set. The result is cached for the lifetime of the driver.
func (a *ADB) ScreenSize(ctx context.Context) (int, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.width > 0 {
		return a.width, a.height, nil
	}

	out, err := a.run(ctx, "wm size", "shell", "wm", "size")
	if err != nil {
		return 0, 0, err
	}
	w, h, err := parseSize(out)
	if err != nil {
		return 0, 0, &CommunicationError{Op: "wm size", Output: out, Err: err}
	}
	a.width, a.height = w, h
	return w, h, nil
}

func parseSize(out string) (int, int, error) {
	var w, h int
	for _, m := range sizeRe.FindAllStringSubmatch(out, -1) {
		if w > 0 && m[1] == "Physical" {
			continue
		}
		w, _ = strconv.Atoi(m[2])
		h, _ = strconv.Atoi(m[3])
	}
	if w <= 0 || h <= 0 {
		return 0, 0, errors.New("no screen size in output")
	}
	return w, h, nil
}

// CaptureScreenshot saves a PNG of the screen as dir/screenshot_before.png.
func (a *ADB) CaptureScreenshot(ctx context.Context, dir string) (string, error) {
	remote := a.remoteDir + "/mobilepilot_screen.png"
	local := filepath.Join(dir, ScreenshotFile)
	if _, err := a.run(ctx, "screencap", "shell", "screencap", "-p", remote); err != nil {
		return "", err
	}
	if _, err := a.run(ctx, "pull screenshot", "pull", remote, local); err != nil {
		return "", err
	}
	return local, nil
}

// CaptureUISnapshot saves the accessibility dump as dir/xml.xml.
func (a *ADB) CaptureUISnapshot(ctx context.Context, dir string) (string, error) {
	remote := a.remoteDir + "/mobilepilot_ui.xml"
	local := filepath.Join(dir, SnapshotFile)
	if _, err := a.run(ctx, "uiautomator dump", "shell", "uiautomator", "dump", remote); err != nil {
		return "", err
	}
	if _, err := a.run(ctx, "pull ui dump", "pull", remote, local); err != nil {
		return "", err
	}
	return local, nil
}

// Tap presses the screen at (x, y).
func (a *ADB) Tap(ctx context.Context, x, y int) error {
	_, err := a.run(ctx, "tap", "shell", "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	return err
}

// InjectText types text into the focused field. Line breaks, either real or
// written as a literal backslash-n, are sent as the enter key.
func (a *ADB) InjectText(ctx context.Context, text string) error {
	text = strings.ReplaceAll(text, `\n`, "\n")
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			if _, err := a.run(ctx, "enter", "shell", "input", "keyevent", "KEYCODE_ENTER"); err != nil {
				return err
			}
		}
		if line == "" {
			continue
		}
		if _, err := a.run(ctx, "text", "shell", "input", "text", encodeText(line)); err != nil {
			return err
		}
	}
	return nil
}

// encodeText prepares a line for "input text": spaces become %s, single
// quotes are dropped, and the result is single-quoted for the device shell.
func encodeText(s string) string {
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, " ", "%s")
	return "'" + s + "'"
}

// Swipe drags from (x, y) along dir for dist.
func (a *ADB) Swipe(ctx context.Context, x, y int, dir schemas.Direction, dist schemas.Distance) error {
	width, _, err := a.ScreenSize(ctx)
	if err != nil {
		return err
	}
	dx, dy, err := SwipeVector(width, dir, dist)
	if err != nil {
		return &CommunicationError{Op: "swipe", Err: err}
	}
	_, err = a.run(ctx, "swipe", "shell", "input", "swipe",
		strconv.Itoa(x), strconv.Itoa(y),
		strconv.Itoa(x+dx), strconv.Itoa(y+dy),
		strconv.Itoa(a.swipeDuration))
	return err
}

// SwipeVector returns the drag offset for a swipe on a screen of the given
// width. The unit is a tenth of the width, doubled for medium and tripled for
// long; vertical swipes travel twice as far as horizontal ones.
func SwipeVector(width int, dir schemas.Direction, dist schemas.Distance) (dx, dy int, err error) {
	unit := width / 10
	switch dist {
	case schemas.DistanceShort:
	case schemas.DistanceMedium:
		unit *= 2
	case schemas.DistanceLong:
		unit *= 3
	default:
		return 0, 0, fmt.Errorf("unknown swipe distance %q", dist)
	}

	switch dir {
	case schemas.DirectionUp:
		return 0, -2 * unit, nil
	case schemas.DirectionDown:
		return 0, 2 * unit, nil
	case schemas.DirectionLeft:
		return -unit, 0, nil
	case schemas.DirectionRight:
		return unit, 0, nil
	}
	return 0, 0, fmt.Errorf("unknown swipe direction %q", dir)
}
