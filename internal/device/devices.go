package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoDevice is returned by Select when nothing usable is attached.
var ErrNoDevice = errors.New("no android device attached")

// Info is one line of "adb devices".
type Info struct {
	Serial string `json:"serial"`
	State  string `json:"state"`
}

// Ready reports whether adb can drive the device.
func (i Info) Ready() bool { return i.State == "device" }

// ListDevices runs "adb devices" and returns every attached device.
func ListDevices(ctx context.Context, adbPath string, opts ...Option) ([]Info, error) {
	o := buildOptions(opts)
	out, err := o.runner.Run(ctx, adbPath, "devices")
	if err != nil {
		return nil, &CommunicationError{Op: "devices", Args: []string{"devices"}, Output: string(out), Err: err}
	}
	return parseDevices(string(out)), nil
}

func parseDevices(out string) []Info {
	var devs []Info
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		devs = append(devs, Info{Serial: fields[0], State: fields[1]})
	}
	return devs
}

// Select picks the device to drive. A configured serial must be attached and
// ready; without one exactly one ready device must be present.
func Select(devs []Info, serial string) (string, error) {
	var ready []string
	for _, d := range devs {
		if serial != "" && d.Serial == serial {
			if !d.Ready() {
				return "", fmt.Errorf("device %s is %s", serial, d.State)
			}
			return serial, nil
		}
		if d.Ready() {
			ready = append(ready, d.Serial)
		}
	}
	if serial != "" {
		return "", fmt.Errorf("%w: %s not found", ErrNoDevice, serial)
	}
	switch len(ready) {
	case 0:
		return "", ErrNoDevice
	case 1:
		return ready[0], nil
	default:
		return "", fmt.Errorf("%d devices attached (%s); set device.serial to choose one", len(ready), strings.Join(ready, ", "))
	}
}

// Probe is the outcome of querying one device.
type Probe struct {
	Serial string
	Width  int
	Height int
	Err    error
}

// ProbeAll queries the screen size of every ready device concurrently. A
// failing device is reported in its Probe and does not stop the others.
func ProbeAll(ctx context.Context, newDriver func(serial string) *ADB, devs []Info, logger *zap.Logger) []Probe {
	probes := make([]Probe, len(devs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, d := range devs {
		probes[i].Serial = d.Serial
		if !d.Ready() {
			probes[i].Err = fmt.Errorf("device is %s", d.State)
			continue
		}
		g.Go(func() error {
			w, h, err := newDriver(d.Serial).ScreenSize(gctx)
			if err != nil {
				logger.Warn("Failed to probe device.", zap.String("serial", d.Serial), zap.Error(err))
			}
			probes[i].Width, probes[i].Height, probes[i].Err = w, h, err
			return nil
		})
	}
	_ = g.Wait()
	return probes
}
