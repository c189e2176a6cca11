package schemas

import (
	"context"
	"fmt"
)

// -- Device Interface --

// Direction of a swipe gesture.
type Direction string

const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// ParseDirection validates s against the closed set of swipe directions.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case DirectionUp, DirectionDown, DirectionLeft, DirectionRight:
		return d, nil
	}
	return "", fmt.Errorf("unknown swipe direction %q (want up, down, left or right)", s)
}

// Distance of a swipe gesture, relative to the screen width.
type Distance string

const (
	DistanceShort  Distance = "short"
	DistanceMedium Distance = "medium"
	DistanceLong   Distance = "long"
)

// ParseDistance validates s against the closed set of swipe distances.
func ParseDistance(s string) (Distance, error) {
	switch d := Distance(s); d {
	case DistanceShort, DistanceMedium, DistanceLong:
		return d, nil
	}
	return "", fmt.Errorf("unknown swipe distance %q (want short, medium or long)", s)
}

// Device abstracts the phone being driven. All calls block until the device
// acknowledges the operation.
type Device interface {
	// ScreenSize reports the physical display size in pixels.
	ScreenSize(ctx context.Context) (width, height int, err error)
	// CaptureScreenshot saves a PNG screenshot into dir and returns its path.
	CaptureScreenshot(ctx context.Context, dir string) (string, error)
	// CaptureUISnapshot saves the accessibility tree dump into dir and returns its path.
	CaptureUISnapshot(ctx context.Context, dir string) (string, error)
	Tap(ctx context.Context, x, y int) error
	// InjectText types text into the focused field. The text is passed through
	// unmodified; the implementation maps control sequences to key events.
	InjectText(ctx context.Context, text string) error
	Swipe(ctx context.Context, x, y int, dir Direction, dist Distance) error
}

// -- Decision Service Interface --

// DecisionRequest carries everything a decision service needs for one round.
type DecisionRequest struct {
	Task        string `json:"task"`
	Image       []byte `json:"-"`
	ImageMIME   string `json:"image_mime"`
	LastSummary string `json:"last_summary"`
}

// Decider asks a multimodal model what to do next and returns its raw reply.
type Decider interface {
	Decide(ctx context.Context, req DecisionRequest) (string, error)
	// Name identifies the provider/model pair for logging.
	Name() string
}
