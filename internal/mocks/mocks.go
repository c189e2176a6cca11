// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/mobilepilot/api/schemas"
)

// -- Device Mock --

// MockDevice mocks schemas.Device.
//
// The capture methods accept either a static path or a
// func(dir string) (string, error) as their first return value; the function
// form lets a test write fixture files into the round directory it is given.
type MockDevice struct {
	mock.Mock
}

var _ schemas.Device = (*MockDevice)(nil)

func (m *MockDevice) ScreenSize(ctx context.Context) (int, int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *MockDevice) CaptureScreenshot(ctx context.Context, dir string) (string, error) {
	return capture(m.Called(ctx, dir), dir)
}

func (m *MockDevice) CaptureUISnapshot(ctx context.Context, dir string) (string, error) {
	return capture(m.Called(ctx, dir), dir)
}

func capture(args mock.Arguments, dir string) (string, error) {
	if fn, ok := args.Get(0).(func(string) (string, error)); ok {
		return fn(dir)
	}
	return args.String(0), args.Error(1)
}

func (m *MockDevice) Tap(ctx context.Context, x, y int) error {
	return m.Called(ctx, x, y).Error(0)
}

func (m *MockDevice) InjectText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockDevice) Swipe(ctx context.Context, x, y int, dir schemas.Direction, dist schemas.Distance) error {
	return m.Called(ctx, x, y, dir, dist).Error(0)
}

// -- Decider Mock --

// MockDecider mocks schemas.Decider. Name reports ID, or "mock" when unset.
type MockDecider struct {
	mock.Mock
	ID string
}

var _ schemas.Decider = (*MockDecider)(nil)

func (m *MockDecider) Decide(ctx context.Context, req schemas.DecisionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockDecider) Name() string {
	if m.ID == "" {
		return "mock"
	}
	return m.ID
}

// -- Command Runner Mock --

// MockRunner mocks device.Runner. Expectations match on the program name and
// the argument slice.
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ret := m.Called(name, args)
	var out []byte
	if ret.Get(0) != nil {
		out = ret.Get(0).([]byte)
	}
	return out, ret.Error(1)
}
