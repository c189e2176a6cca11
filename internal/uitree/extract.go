// Package uitree turns a UIAutomator accessibility dump into the indexed list
// of interactive elements that a decision round is grounded on.
package uitree

import (
	"bytes"
	"errors"
	"fmt"
	"hash"
	"hash/fnv"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/beevik/etree"
	"github.com/xkilldash9x/mobilepilot/api/schemas"
)

// ErrSnapshotParse is matched by every *SnapshotParseError.
var ErrSnapshotParse = errors.New("ui snapshot could not be parsed")

// SnapshotParseError reports a dump that is not well formed, or a node whose
// bounds attribute cannot be read.
type SnapshotParseError struct {
	// Path is the element path of the offending node, empty for document errors.
	Path string
	Err  error
}

func (e *SnapshotParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("parse ui snapshot at %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("parse ui snapshot: %v", e.Err)
}

func (e *SnapshotParseError) Unwrap() error { return e.Err }

func (e *SnapshotParseError) Is(target error) bool { return target == ErrSnapshotParse }

// Options tunes clipping and deduplication.
type Options struct {
	// Viewport, when valid, clips every box and drops nodes that fall outside it.
	Viewport schemas.BoundingBox
	// ContainmentTolerance is the largest per-edge gap, in pixels, at which a
	// box nested inside another is treated as the same target.
	ContainmentTolerance int
	// MinCenterDistance collapses elements whose centres are at most this far
	// apart. Zero disables the check.
	MinCenterDistance int
}

// DefaultOptions returns the tolerances used when nothing is configured.
func DefaultOptions() Options {
	return Options{ContainmentTolerance: 10, MinCenterDistance: 30}
}

var boundsRe = regexp.MustCompile(`^\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]$`)

// hasherPool keeps FNV hashers around for fingerprinting.
var hasherPool = sync.Pool{
	New: func() interface{} {
		return fnv.New64a()
	},
}

// ExtractFile reads a dump from disk and extracts its elements.
func ExtractFile(path string, opts Options) ([]schemas.Element, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ui snapshot: %w", err)
	}
	return Extract(data, opts)
}

// Extract returns the deduplicated interactive elements of snapshot in
// depth-first pre-order. Element.Index is the 1-based position in the result.
// An empty snapshot, or one without interactive nodes, yields an empty slice.
func Extract(snapshot []byte, opts Options) ([]schemas.Element, error) {
	if len(bytes.TrimSpace(snapshot)) == 0 {
		return []schemas.Element{}, nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(snapshot); err != nil {
		return nil, &SnapshotParseError{Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &SnapshotParseError{Err: errors.New("document has no root element")}
	}

	x := &extractor{opts: opts, elements: []schemas.Element{}}
	if err := x.walk(root); err != nil {
		return nil, err
	}
	for i := range x.elements {
		x.elements[i].Index = i + 1
	}
	return x.elements, nil
}

type extractor struct {
	opts     Options
	elements []schemas.Element
}

func (x *extractor) walk(el *etree.Element) error {
	if el.Tag == "node" {
		if err := x.visit(el); err != nil {
			return err
		}
	}
	for _, child := range el.ChildElements() {
		if err := x.walk(child); err != nil {
			return err
		}
	}
	return nil
}

func (x *extractor) visit(el *etree.Element) error {
	raw := el.SelectAttr("bounds")
	if raw == nil {
		return nil
	}
	box, err := parseBounds(raw.Value)
	if err != nil {
		return &SnapshotParseError{Path: el.GetPath(), Err: err}
	}

	traits := traitsOf(el)
	if traits == 0 {
		return nil
	}

	if x.opts.Viewport.Valid() {
		box = box.Intersect(x.opts.Viewport)
	} else if box.X2 <= 0 || box.Y2 <= 0 {
		return nil
	}
	if !box.Valid() {
		return nil
	}

	candidate := schemas.Element{
		Box:         box,
		ResourceID:  el.SelectAttrValue("resource-id", ""),
		Class:       el.SelectAttrValue("class", ""),
		Text:        el.SelectAttrValue("text", ""),
		ContentDesc: el.SelectAttrValue("content-desc", ""),
		Traits:      traits,
	}
	candidate.UID = fingerprint(candidate)

	for i := range x.elements {
		if x.duplicates(x.elements[i].Box, box) {
			merge(&x.elements[i], candidate)
			return nil
		}
	}
	x.elements = append(x.elements, candidate)
	return nil
}

// duplicates reports whether two boxes address the same on-screen target.
func (x *extractor) duplicates(a, b schemas.BoundingBox) bool {
	if a == b {
		return true
	}
	if a.Contains(b) || b.Contains(a) {
		tol := x.opts.ContainmentTolerance
		if abs(a.X1-b.X1) <= tol && abs(a.Y1-b.Y1) <= tol &&
			abs(a.X2-b.X2) <= tol && abs(a.Y2-b.Y2) <= tol {
			return true
		}
	}
	if x.opts.MinCenterDistance > 0 {
		ca, cb := a.Center(), b.Center()
		dist := math.Hypot(float64(ca.X-cb.X), float64(ca.Y-cb.Y))
		if dist <= float64(x.opts.MinCenterDistance) {
			return true
		}
	}
	return false
}

// merge folds a collapsed node into the surviving element. The survivor keeps
// its box and identity.
func merge(survivor *schemas.Element, collapsed schemas.Element) {
	survivor.Traits |= collapsed.Traits
	if survivor.Text == "" {
		survivor.Text = collapsed.Text
	}
	if survivor.ContentDesc == "" {
		survivor.ContentDesc = collapsed.ContentDesc
	}
	if survivor.ResourceID == "" {
		survivor.ResourceID = collapsed.ResourceID
	}
}

func traitsOf(el *etree.Element) schemas.Trait {
	var t schemas.Trait
	isTrue := func(name string) bool { return el.SelectAttrValue(name, "") == "true" }

	if isTrue("clickable") {
		t |= schemas.TraitClickable
	}
	if isTrue("long-clickable") {
		t |= schemas.TraitLongClickable
	}
	if isTrue("scrollable") {
		t |= schemas.TraitScrollable
	}
	if isTrue("checkable") {
		t |= schemas.TraitCheckable
	}
	if strings.Contains(el.SelectAttrValue("class", ""), "EditText") {
		t |= schemas.TraitEditable
	}
	if strings.TrimSpace(el.SelectAttrValue("content-desc", "")) != "" {
		t |= schemas.TraitLabeled
	}
	return t
}

func parseBounds(s string) (schemas.BoundingBox, error) {
	m := boundsRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return schemas.BoundingBox{}, fmt.Errorf("malformed bounds %q", s)
	}
	var v [4]int
	for i := range v {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return schemas.BoundingBox{}, fmt.Errorf("malformed bounds %q: %w", s, err)
		}
		v[i] = n
	}
	return schemas.BoundingBox{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, nil
}

// fingerprint derives a stable identifier from the attributes that survive
// re-renders of the same screen.
func fingerprint(e schemas.Element) string {
	hasher := hasherPool.Get().(hash.Hash64)
	defer func() {
		hasher.Reset()
		hasherPool.Put(hasher)
	}()

	_, _ = fmt.Fprintf(hasher, "%s|%s|%dx%d", e.ResourceID, e.Class, e.Box.Width(), e.Box.Height())
	return strconv.FormatUint(hasher.Sum64(), 16)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
