// internal/llmutil/parser.go
package llmutil

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/mobilepilot/api/schemas"
)

// Field labels in the order the model is asked to emit them.
const (
	FieldObservation = "Observation"
	FieldThought     = "Thought"
	FieldAction      = "Action"
	FieldSummary     = "Summary"
)

// ErrResponseFormat is matched by every *ResponseFormatError.
var ErrResponseFormat = errors.New("decision reply is not in the expected format")

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// codeBlockRegex extracts content wrapped in markdown, with or without a language tag.
	codeBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60[a-zA-Z]*\\s*(.*?)\\s*\x60\x60\x60")

	fieldRegexes = []struct {
		name string
		re   *regexp.Regexp
	}{
		{FieldObservation, fieldRegex(FieldObservation)},
		{FieldThought, fieldRegex(FieldThought)},
		{FieldAction, fieldRegex(FieldAction)},
		{FieldSummary, fieldRegex(FieldSummary)},
	}
)

// fieldRegex matches "Label: value" at the start of a line. Markdown bold
// around the label is tolerated.
func fieldRegex(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^[ \t]*(?:\*\*)?` + label + `(?:\*\*)?:(?:\*\*)?[ \t]*(.*)$`)
}

// ResponseFormatError lists every field that could not be found in a reply.
type ResponseFormatError struct {
	Missing []string
	// Excerpt is the start of the offending reply, for diagnostics.
	Excerpt string
}

func (e *ResponseFormatError) Error() string {
	return fmt.Sprintf("reply is missing %s (reply starts: %q)", strings.Join(e.Missing, ", "), e.Excerpt)
}

func (e *ResponseFormatError) Is(target error) bool { return target == ErrResponseFormat }

// ParseDecision extracts the four labelled fields from a model reply. Each
// value is the remainder of the first line carrying its label, trimmed of
// surrounding blanks. All four must be present.
func ParseDecision(reply string) (schemas.RoundRecord, error) {
	cleaned := CleanReply(reply)

	values := make(map[string]string, len(fieldRegexes))
	var missing []string
	for _, f := range fieldRegexes {
		m := f.re.FindStringSubmatch(cleaned)
		if m == nil {
			missing = append(missing, f.name)
			continue
		}
		values[f.name] = strings.TrimSpace(m[1])
	}
	if len(missing) > 0 {
		return schemas.RoundRecord{}, &ResponseFormatError{Missing: missing, Excerpt: truncateString(strings.TrimSpace(reply), 120)}
	}

	return schemas.RoundRecord{
		Observation: values[FieldObservation],
		Thought:     values[FieldThought],
		Action:      values[FieldAction],
		Summary:     values[FieldSummary],
	}, nil
}

// CleanReply removes an enclosing markdown code fence, which some models add
// around otherwise well-formed answers.
func CleanReply(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if matches := codeBlockRegex.FindStringSubmatch(content); len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
	}
	return content
}

// truncateString truncates a string to a maximum length.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	// Simple truncation; does not account for rune boundaries but sufficient for error logging.
	return s[:maxLen] + "..."
}
