// Package transcript reads and writes the plain-text record of a session:
// the task followed by every round's four fields.
package transcript

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xkilldash9x/mobilepilot/api/schemas"
)

// FileName is the transcript's name inside the artifact directory.
const FileName = "output.txt"

const (
	headerTask        = "Your command:"
	headerObservation = "Observation:"
	headerThought     = "Thought:"
	headerAction      = "Action:"
	headerSummary     = "Summary:"
)

// ErrMalformed is returned by Parse for input that Write could not have produced.
var ErrMalformed = errors.New("malformed transcript")

// Write emits the task and records. Every round block ends with a blank line.
func Write(w io.Writer, task string, records []schemas.RoundRecord) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n%s\n\n", headerTask, task)
	for _, r := range records {
		fmt.Fprintf(bw, "%s\n%s\n%s\n%s\n%s\n%s\n%s\n%s\n\n",
			headerObservation, r.Observation,
			headerThought, r.Thought,
			headerAction, r.Action,
			headerSummary, r.Summary)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// WriteFile replaces path with a fresh transcript. The content is written to a
// temporary file in the same directory and renamed into place, so readers
// never observe a partial transcript.
func WriteFile(path, task string, records []schemas.RoundRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create transcript directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".output-*.txt")
	if err != nil {
		return fmt.Errorf("create temporary transcript: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op once renamed

	if err := Write(tmp, task, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close transcript: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("install transcript: %w", err)
	}
	return nil
}

// Parse reads a transcript produced by Write. Field values that span several
// lines are joined with "\n"; blank lines ending a value are dropped.
//
// Values are not escaped, so a value line that reads exactly like a header
// (for example "Summary:") ends the field early and usually yields
// ErrMalformed. Text following a header on the same line is not affected.
func Parse(r io.Reader) (string, []schemas.RoundRecord, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return "", nil, fmt.Errorf("read transcript: %w", err)
	}

	p := &parser{lines: lines}
	if !p.expect(headerTask) {
		return "", nil, fmt.Errorf("%w: missing %q header", ErrMalformed, headerTask)
	}
	task := p.value()

	records := []schemas.RoundRecord{}
	for !p.done() {
		var rec schemas.RoundRecord
		for _, f := range []struct {
			header string
			dst    *string
		}{
			{headerObservation, &rec.Observation},
			{headerThought, &rec.Thought},
			{headerAction, &rec.Action},
			{headerSummary, &rec.Summary},
		} {
			if !p.expect(f.header) {
				return "", nil, fmt.Errorf("%w: round %d: expected %q at line %d", ErrMalformed, len(records)+1, f.header, p.pos+1)
			}
			*f.dst = p.value()
		}
		records = append(records, rec)
	}
	return task, records, nil
}

type parser struct {
	lines []string
	pos   int
}

func (p *parser) done() bool { return p.pos >= len(p.lines) }

func (p *parser) expect(header string) bool {
	if p.done() || p.lines[p.pos] != header {
		return false
	}
	p.pos++
	return true
}

// value consumes lines up to the next header.
func (p *parser) value() string {
	start := p.pos
	for !p.done() && !isHeader(p.lines[p.pos]) {
		p.pos++
	}
	body := p.lines[start:p.pos]
	for len(body) > 0 && body[len(body)-1] == "" {
		body = body[:len(body)-1]
	}
	return strings.Join(body, "\n")
}

func isHeader(line string) bool {
	switch line {
	case headerTask, headerObservation, headerThought, headerAction, headerSummary:
		return true
	}
	return false
}
