// internal/agent/errors.go
package agent

import "fmt"

// Stage names the step of a round in which a fatal error occurred.
type Stage string

const (
	StageArtifacts Stage = "ARTIFACTS"
	StageCapture   Stage = "CAPTURE"
	StageExtract   Stage = "EXTRACT"
	StageAnnotate  Stage = "ANNOTATE"
	StageDecide    Stage = "DECIDE"
	StageParse     Stage = "PARSE"
	StageInterpret Stage = "INTERPRET"
	StageExecute   Stage = "EXECUTE"
)

// RoundError aborts a session. It names the failing round and stage and wraps
// the component error, so callers can still match it with errors.Is/As.
type RoundError struct {
	Round int
	Stage Stage
	Err   error
}

func (e *RoundError) Error() string {
	return fmt.Sprintf("round %d failed during %s: %v", e.Round, e.Stage, e.Err)
}

func (e *RoundError) Unwrap() error { return e.Err }
