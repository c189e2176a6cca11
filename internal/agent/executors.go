// internal/agent/executors.go
package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mobilepilot/api/schemas"
	"github.com/xkilldash9x/mobilepilot/internal/action"
)

// CommandHandler performs one kind of interpreted command on the device.
type CommandHandler func(ctx context.Context, dev schemas.Device, cmd action.Command) error

// ExecutorRegistry dispatches interpreted commands to device operations.
type ExecutorRegistry struct {
	logger   *zap.Logger
	device   schemas.Device
	handlers map[action.Kind]CommandHandler
}

// NewExecutorRegistry registers the handlers for tap, type and swipe. Stop
// never reaches the device and has no handler.
func NewExecutorRegistry(dev schemas.Device, logger *zap.Logger) *ExecutorRegistry {
	r := &ExecutorRegistry{
		logger:   logger.Named("executor_registry"),
		device:   dev,
		handlers: make(map[action.Kind]CommandHandler),
	}
	r.register(action.KindTap, handleTap)
	r.register(action.KindType, handleType)
	r.register(action.KindSwipe, handleSwipe)
	return r
}

func (r *ExecutorRegistry) register(kind action.Kind, h CommandHandler) {
	r.handlers[kind] = h
}

// Execute runs cmd on the device.
func (r *ExecutorRegistry) Execute(ctx context.Context, cmd action.Command) error {
	h, ok := r.handlers[cmd.Kind()]
	if !ok {
		return fmt.Errorf("no executor registered for command kind: %s", cmd.Kind())
	}
	r.logger.Debug("Executing command.", zap.String("kind", string(cmd.Kind())), zap.Any("command", cmd))
	return h(ctx, r.device, cmd)
}

func handleTap(ctx context.Context, dev schemas.Device, cmd action.Command) error {
	tap, ok := cmd.(action.Tap)
	if !ok {
		return fmt.Errorf("invalid command type for tap: %T", cmd)
	}
	return dev.Tap(ctx, tap.Point.X, tap.Point.Y)
}

func handleType(ctx context.Context, dev schemas.Device, cmd action.Command) error {
	typ, ok := cmd.(action.Type)
	if !ok {
		return fmt.Errorf("invalid command type for type: %T", cmd)
	}
	return dev.InjectText(ctx, typ.Text)
}

func handleSwipe(ctx context.Context, dev schemas.Device, cmd action.Command) error {
	swipe, ok := cmd.(action.Swipe)
	if !ok {
		return fmt.Errorf("invalid command type for swipe: %T", cmd)
	}
	return dev.Swipe(ctx, swipe.Origin.X, swipe.Origin.Y, swipe.Direction, swipe.Distance)
}
