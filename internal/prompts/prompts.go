// Package prompts renders the instruction text sent with every screenshot.
package prompts

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

// NoHistory is the summary used before the first round has completed.
const NoHistory = "None"

//go:embed decision.tmpl
var decisionTemplate string

var decision = template.Must(template.New("decision").Option("missingkey=error").Parse(decisionTemplate))

// DecisionData fills the decision template.
type DecisionData struct {
	Task        string
	LastSummary string
}

// RenderDecision produces the prompt for one round. An empty summary is
// rendered as NoHistory.
func RenderDecision(task, lastSummary string) (string, error) {
	if strings.TrimSpace(lastSummary) == "" {
		lastSummary = NoHistory
	}
	var b strings.Builder
	if err := decision.Execute(&b, DecisionData{Task: task, LastSummary: lastSummary}); err != nil {
		return "", fmt.Errorf("render decision prompt: %w", err)
	}
	return b.String(), nil
}
