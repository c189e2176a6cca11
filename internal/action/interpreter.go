// Package action turns the free-text Action field of a decision into a typed
// device command grounded on the current round's elements.
package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xkilldash9x/mobilepilot/api/schemas"
)

// Kind identifies a command variant.
type Kind string

const (
	KindTap   Kind = "tap"
	KindType  Kind = "type"
	KindSwipe Kind = "swipe"
	KindStop  Kind = "stop"
)

// Command is one of Tap, Type, Swipe or Stop.
type Command interface {
	Kind() Kind
	isCommand()
}

// Tap presses the screen at Point.
type Tap struct {
	Element int           `json:"element"`
	Point   schemas.Point `json:"point"`
}

// Type injects Text into the focused input. Text is the call's argument with
// one pair of enclosing double quotes removed; escapes such as \n are kept
// as written and left to the device.
type Type struct {
	Text string `json:"text"`
}

// Swipe drags from Origin in Direction for Distance.
type Swipe struct {
	Element   int               `json:"element"`
	Origin    schemas.Point     `json:"origin"`
	Direction schemas.Direction `json:"direction"`
	Distance  schemas.Distance  `json:"distance"`
}

// Stop ends the session.
type Stop struct{}

func (Tap) Kind() Kind   { return KindTap }
func (Type) Kind() Kind  { return KindType }
func (Swipe) Kind() Kind { return KindSwipe }
func (Stop) Kind() Kind  { return KindStop }

func (Tap) isCommand()   {}
func (Type) isCommand()  {}
func (Swipe) isCommand() {}
func (Stop) isCommand()  {}

// ErrRecoverable is matched by every interpreter error. A round whose action
// cannot be interpreted is skipped rather than aborting the session.
var ErrRecoverable = errors.New("action could not be interpreted")

// ActionParseError means no known function was found in the action text.
type ActionParseError struct {
	Text string
}

func (e *ActionParseError) Error() string {
	return fmt.Sprintf("no tap, type, swipe or stop call in action %q", e.Text)
}

func (e *ActionParseError) Is(target error) bool { return target == ErrRecoverable }

// ActionTargetError means an element index is not on the current screen.
type ActionTargetError struct {
	Index int
	Count int
}

func (e *ActionTargetError) Error() string {
	if e.Count == 0 {
		return fmt.Sprintf("element %d does not exist: the screen has no labelled elements", e.Index)
	}
	return fmt.Sprintf("element %d does not exist: valid labels are 1 to %d", e.Index, e.Count)
}

func (e *ActionTargetError) Is(target error) bool { return target == ErrRecoverable }

// ActionArgumentError means a function was called with unusable arguments.
type ActionArgumentError struct {
	Function string
	Args     string
	Reason   string
}

func (e *ActionArgumentError) Error() string {
	return fmt.Sprintf("bad arguments to %s(%s): %s", e.Function, e.Args, e.Reason)
}

func (e *ActionArgumentError) Is(target error) bool { return target == ErrRecoverable }

var functions = []Kind{KindTap, KindType, KindSwipe}

// Interpret resolves actionText against elems. Any mention of "stop" ends the
// session. Otherwise the earliest of tap(, type( or swipe( selects the call.
// Text after the call's closing parenthesis is ignored.
func Interpret(actionText string, elems []schemas.Element) (Command, error) {
	if strings.Contains(actionText, "stop") {
		return Stop{}, nil
	}

	fn, args, ok := locateCall(actionText)
	if !ok {
		return nil, &ActionParseError{Text: actionText}
	}

	switch fn {
	case KindTap:
		idx, err := elementIndex(fn, args, strings.TrimSpace(args))
		if err != nil {
			return nil, err
		}
		el, err := lookup(idx, elems)
		if err != nil {
			return nil, err
		}
		return Tap{Element: idx, Point: el.Center()}, nil

	case KindType:
		if trimmed := strings.TrimSpace(args); isQuoted(trimmed) {
			return Type{Text: unquote(trimmed)}, nil
		}
		return Type{Text: args}, nil

	case KindSwipe:
		parts := strings.Split(args, ",")
		if len(parts) != 3 {
			return nil, &ActionArgumentError{Function: string(fn), Args: args, Reason: fmt.Sprintf("want 3 arguments, got %d", len(parts))}
		}
		idx, err := elementIndex(fn, args, strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, err
		}
		dir, err := schemas.ParseDirection(unquote(strings.TrimSpace(parts[1])))
		if err != nil {
			return nil, &ActionArgumentError{Function: string(fn), Args: args, Reason: err.Error()}
		}
		dist, err := schemas.ParseDistance(unquote(strings.TrimSpace(parts[2])))
		if err != nil {
			return nil, &ActionArgumentError{Function: string(fn), Args: args, Reason: err.Error()}
		}
		el, err := lookup(idx, elems)
		if err != nil {
			return nil, err
		}
		return Swipe{Element: idx, Origin: el.Center(), Direction: dir, Distance: dist}, nil
	}
	return nil, &ActionParseError{Text: actionText}
}

// locateCall finds the earliest known function call and its raw arguments.
func locateCall(text string) (Kind, string, bool) {
	best, at := Kind(""), -1
	for _, fn := range functions {
		if i := strings.Index(text, string(fn)+"("); i >= 0 && (at < 0 || i < at) {
			best, at = fn, i
		}
	}
	if at < 0 {
		return "", "", false
	}
	open := at + len(best) + 1
	closing := argumentEnd(best, text, open)
	if closing < 0 {
		return "", "", false
	}
	return best, text[open:closing], true
}

// argumentEnd returns the index of the parenthesis closing the call whose
// arguments start at open, or -1. A quoted type argument ends at the first
// quote followed by ")"; everything else ends at the first ")".
func argumentEnd(fn Kind, text string, open int) int {
	rest := text[open:]
	if fn == KindType {
		if lead := strings.TrimLeft(rest, " \t"); strings.HasPrefix(lead, `"`) {
			for i := len(rest) - len(lead) + 1; i < len(rest); i++ {
				if rest[i] != '"' {
					continue
				}
				if tail := strings.TrimLeft(rest[i+1:], " \t"); strings.HasPrefix(tail, ")") {
					return open + len(rest) - len(tail)
				}
			}
		}
	}
	if i := strings.Index(rest, ")"); i >= 0 {
		return open + i
	}
	return -1
}

func elementIndex(fn Kind, args, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ActionArgumentError{Function: string(fn), Args: args, Reason: fmt.Sprintf("element label %q is not an integer", raw)}
	}
	return n, nil
}

func lookup(idx int, elems []schemas.Element) (schemas.Element, error) {
	if idx < 1 || idx > len(elems) {
		return schemas.Element{}, &ActionTargetError{Index: idx, Count: len(elems)}
	}
	return elems[idx-1], nil
}

// unquote removes one pair of enclosing double quotes.
func unquote(s string) string {
	if isQuoted(s) {
		return s[1 : len(s)-1]
	}
	return s
}

func isQuoted(s string) bool {
	return len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"'
}
