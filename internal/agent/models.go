// internal/agent/models.go
package agent

import (
	"github.com/google/uuid"

	"github.com/xkilldash9x/mobilepilot/api/schemas"
	"github.com/xkilldash9x/mobilepilot/internal/action"
	"github.com/xkilldash9x/mobilepilot/internal/prompts"
)

// State is the controller's position in the session lifecycle.
type State string

const (
	StateAwaitingTask State = "AWAITING_TASK" // No task has been accepted yet.
	StateRunning      State = "RUNNING"       // Rounds are being executed.
	StateStopped      State = "STOPPED"       // The model issued stop.
	StateExhausted    State = "EXHAUSTED"     // The round budget ran out.
	StateFailed       State = "FAILED"        // A fatal error aborted the session.
)

// Terminal reports whether no further rounds will run.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateExhausted || s == StateFailed
}

// Session is the cross-round state of one task. It is owned by the
// controller goroutine and discarded once the transcript is flushed.
type Session struct {
	ID                string
	TaskDescription   string
	RoundIndex        int
	LastActionSummary string
	History           []schemas.RoundRecord
	State             State
}

func newSession(task string) *Session {
	return &Session{
		ID:                uuid.New().String()[:8],
		TaskDescription:   task,
		LastActionSummary: prompts.NoHistory,
		History:           make([]schemas.RoundRecord, 0),
		State:             StateAwaitingTask,
	}
}

// Result is what a finished session leaves behind.
type Result struct {
	SessionID      string
	State          State
	Records        []schemas.RoundRecord
	Rounds         int
	TranscriptPath string
}

// roundArtifact is persisted as round.json next to the screenshots.
type roundArtifact struct {
	Session     string              `json:"session"`
	Round       int                 `json:"round"`
	Decider     string              `json:"decider"`
	Record      schemas.RoundRecord `json:"record"`
	CommandKind action.Kind         `json:"command_kind,omitempty"`
	Command     action.Command      `json:"command,omitempty"`
	ActionError string              `json:"action_error,omitempty"`
	Elements    []schemas.Element   `json:"elements"`
}
