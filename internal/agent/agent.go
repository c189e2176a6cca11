// Package agent runs the perceive, decide and act loop against a phone.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mobilepilot/api/schemas"
	"github.com/xkilldash9x/mobilepilot/internal/action"
	"github.com/xkilldash9x/mobilepilot/internal/annotate"
	"github.com/xkilldash9x/mobilepilot/internal/config"
	"github.com/xkilldash9x/mobilepilot/internal/llmutil"
	"github.com/xkilldash9x/mobilepilot/internal/observability"
	"github.com/xkilldash9x/mobilepilot/internal/transcript"
	"github.com/xkilldash9x/mobilepilot/internal/uitree"
)

// Per-round artifact names.
const (
	LabeledScreenshotFile = "screenshot_labeled.png"
	RoundFile             = "round.json"
)

// Controller drives one task at a time through at most MaxRounds rounds.
type Controller struct {
	cfg       config.AgentConfig
	device    schemas.Device
	decider   schemas.Decider
	executors *ExecutorRegistry
	console   *observability.Console
	logger    *zap.Logger

	extractOpts  uitree.Options
	annotateOpts annotate.Options
}

// Option configures a Controller.
type Option func(*Controller)

// WithConsole narrates each round to an operator.
func WithConsole(c *observability.Console) Option {
	return func(ctl *Controller) { ctl.console = c }
}

// New creates a Controller. The decider is expected to enforce its own
// per-call timeout (see llmclient.NewDecider).
func New(cfg config.AgentConfig, dev schemas.Device, dec schemas.Decider, logger *zap.Logger, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent configuration: %w", err)
	}
	if dev == nil {
		return nil, errors.New("agent requires a device")
	}
	if dec == nil {
		return nil, errors.New("agent requires a decision service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("agent")

	c := &Controller{
		cfg:       cfg,
		device:    dev,
		decider:   dec,
		executors: NewExecutorRegistry(dev, logger),
		logger:    logger,
		extractOpts: uitree.Options{
			ContainmentTolerance: cfg.Extraction.ContainmentTolerance,
			MinCenterDistance:    cfg.Extraction.MinCenterDistance,
		},
		annotateOpts: annotate.Options{
			Scale:     cfg.Annotation.LabelScale,
			Thickness: cfg.Annotation.BoxThickness,
			DarkMode:  cfg.Annotation.DarkMode,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run executes task until the model stops, the round budget is spent, a fatal
// error occurs or ctx is cancelled. Cancellation is only observed between
// rounds. The transcript is flushed on every exit path and a Result is always
// returned, also alongside an error.
func (c *Controller) Run(ctx context.Context, task string) (*Result, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return &Result{State: StateAwaitingTask}, errors.New("task must not be empty")
	}

	s := newSession(task)
	logger := c.logger.With(zap.String("session_id", s.ID))
	logger.Info("Session started.",
		zap.String("task", task),
		zap.String("decider", c.decider.Name()),
		zap.Int("max_rounds", c.cfg.MaxRounds))
	if c.console != nil {
		c.console.Task(task)
	}

	s.State = StateRunning
	var runErr error
	for s.RoundIndex < c.cfg.MaxRounds {
		if err := ctx.Err(); err != nil {
			logger.Warn("Session cancelled between rounds.", zap.Int("rounds_completed", s.RoundIndex))
			s.State = StateFailed
			runErr = err
			break
		}

		s.RoundIndex++
		stopped, err := c.round(ctx, s, logger.With(zap.Int("round", s.RoundIndex)))
		if err != nil {
			logger.Error("Session aborted.", zap.Int("round", s.RoundIndex), zap.Error(err))
			s.State = StateFailed
			runErr = err
			break
		}
		if stopped {
			s.State = StateStopped
			break
		}
	}
	if s.State == StateRunning {
		s.State = StateExhausted
	}

	path := filepath.Join(c.cfg.ArtifactDir, transcript.FileName)
	if err := transcript.WriteFile(path, task, s.History); err != nil {
		logger.Error("Failed to write transcript.", zap.String("path", path), zap.Error(err))
		runErr = errors.Join(runErr, fmt.Errorf("flush transcript: %w", err))
		path = ""
	}

	logger.Info("Session finished.",
		zap.String("state", string(s.State)),
		zap.Int("rounds", s.RoundIndex),
		zap.String("transcript", path))
	if c.console != nil {
		c.console.Outcome(string(s.State), s.RoundIndex, path)
	}

	return &Result{
		SessionID:      s.ID,
		State:          s.State,
		Records:        s.History,
		Rounds:         s.RoundIndex,
		TranscriptPath: path,
	}, runErr
}

// round performs one perceive, decide and act cycle. It reports whether the
// model asked to stop. Cancellation of ctx does not reach the device or the
// decider: a started round runs to completion so no gesture is cut short.
func (c *Controller) round(ctx context.Context, s *Session, logger *zap.Logger) (bool, error) {
	ctx = context.WithoutCancel(ctx)
	n := s.RoundIndex
	fail := func(stage Stage, err error) (bool, error) {
		return false, &RoundError{Round: n, Stage: stage, Err: err}
	}

	dir := filepath.Join(c.cfg.ArtifactDir, strconv.Itoa(n))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(StageArtifacts, err)
	}

	// Perceive.
	width, height, err := c.device.ScreenSize(ctx)
	if err != nil {
		return fail(StageCapture, err)
	}
	shot, err := c.device.CaptureScreenshot(ctx, dir)
	if err != nil {
		return fail(StageCapture, err)
	}
	snapshot, err := c.device.CaptureUISnapshot(ctx, dir)
	if err != nil {
		return fail(StageCapture, err)
	}

	opts := c.extractOpts
	opts.Viewport = schemas.BoundingBox{X2: width, Y2: height}
	elems, err := uitree.ExtractFile(snapshot, opts)
	if errors.Is(err, uitree.ErrSnapshotParse) {
		logger.Warn("UI snapshot could not be parsed, skipping the round.", zap.Error(err))
		return false, nil
	}
	if err != nil {
		return fail(StageExtract, err)
	}
	logger.Debug("Elements grounded.", zap.Int("count", len(elems)))

	labeled := filepath.Join(dir, LabeledScreenshotFile)
	if err := annotate.AnnotateFile(shot, labeled, elems, c.annotateOpts); err != nil {
		return fail(StageAnnotate, err)
	}
	img, err := os.ReadFile(labeled)
	if err != nil {
		return fail(StageAnnotate, err)
	}

	// Decide.
	reply, err := c.decider.Decide(ctx, schemas.DecisionRequest{
		Task:        s.TaskDescription,
		Image:       img,
		ImageMIME:   "image/png",
		LastSummary: s.LastActionSummary,
	})
	if err != nil {
		return fail(StageDecide, err)
	}
	rec, err := llmutil.ParseDecision(reply)
	if err != nil {
		return fail(StageParse, err)
	}

	// Act.
	artifact := roundArtifact{Session: s.ID, Round: n, Decider: c.decider.Name(), Record: rec, Elements: elems}
	cmd, err := action.Interpret(rec.Action, elems)
	switch {
	case errors.Is(err, action.ErrRecoverable):
		logger.Warn("Action could not be interpreted, skipping the round.",
			zap.String("action", rec.Action), zap.Error(err))
		artifact.ActionError = err.Error()
		cmd = nil
	case err != nil:
		return fail(StageInterpret, err)
	default:
		artifact.CommandKind = cmd.Kind()
		artifact.Command = cmd
	}

	if cmd != nil && cmd.Kind() != action.KindStop {
		if err := c.executors.Execute(ctx, cmd); err != nil {
			return fail(StageExecute, err)
		}
	}

	s.History = append(s.History, rec)
	s.LastActionSummary = rec.Summary
	c.writeArtifact(filepath.Join(dir, RoundFile), artifact, logger)
	if c.console != nil {
		c.console.Round(n, rec)
	}

	return cmd != nil && cmd.Kind() == action.KindStop, nil
}

// writeArtifact is best effort; round.json is diagnostic only.
func (c *Controller) writeArtifact(path string, a roundArtifact, logger *zap.Logger) {
	data, err := json.MarshalIndent(a, "", "  ")
	if err == nil {
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		logger.Warn("Failed to write round artifact.", zap.String("path", path), zap.Error(err))
	}
}
