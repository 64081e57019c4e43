// Package graph keeps the positioned diagram in sync with the schema text.
// Nodes keep their positions across re-transforms and only completed drags
// are recorded for undo.
package graph

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"erdlive/internal/schema"
)

var (
	ErrTransformInProgress = errors.New("a schema transform is already in progress")
	ErrNothingToUndo       = errors.New("nothing to undo")
	ErrNothingToRedo       = errors.New("nothing to redo")
	ErrUnknownNode         = errors.New("unknown node")
)

type State int

const (
	Empty State = iota
	Loading
	Ready
	Errored
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one table on the diagram, keyed by namespace.referenceName.
type Node struct {
	ID       string       `json:"id"`
	Label    string       `json:"label"`
	Table    schema.Table `json:"table"`
	Position Position     `json:"position"`
	// SourceColumns are the columns on the parent side of at least one
	// relationship, in table order.
	SourceColumns []string `json:"source_columns"`
}

// Edge is one relationship, drawn from the parent column to the child column.
type Edge struct {
	ID           string              `json:"id"`
	Source       string              `json:"source"`
	Target       string              `json:"target"`
	SourceHandle string              `json:"source_handle"`
	TargetHandle string              `json:"target_handle"`
	Relationship schema.Relationship `json:"relationship"`
}

type Transformer interface {
	Transform(text string) (*schema.TransformResult, error)
}

// Layout places new nodes on a column-major grid.
type Layout struct {
	PerColumn int
	SpacingX  float64
	SpacingY  float64
	OriginX   float64
	OriginY   float64
}

func DefaultLayout() Layout {
	return Layout{PerColumn: 5, SpacingX: 320, SpacingY: 240}
}

func (l Layout) At(ordinal int) Position {
	per := l.PerColumn
	if per <= 0 {
		per = 1
	}
	return Position{
		X: l.OriginX + float64(ordinal/per)*l.SpacingX,
		Y: l.OriginY + float64(ordinal%per)*l.SpacingY,
	}
}

const DefaultHistoryLimit = 50

type Option func(*Engine)

func WithLayout(l Layout) Option {
	return func(e *Engine) { e.layout = l }
}

func WithHistoryLimit(n int) Option {
	return func(e *Engine) { e.history = NewHistory(n) }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine owns the current diagram snapshot. At most one transform runs at a
// time; overlapping submissions are rejected with ErrTransformInProgress.
type Engine struct {
	tr      Transformer
	layout  Layout
	log     logrus.FieldLogger
	now     func() time.Time
	history *History

	mu       sync.Mutex
	state    State
	err      error
	nodes    []Node
	edges    []Edge
	warnings []schema.Warning
	exported string
	// positions holds the live layout; settled is the layout as of the
	// last transform, commit or undo.
	positions map[string]Position
	settled   map[string]Position
}

func NewEngine(tr Transformer, opts ...Option) *Engine {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	e := &Engine{
		tr:        tr,
		layout:    DefaultLayout(),
		log:       discard,
		now:       time.Now,
		history:   NewHistory(DefaultHistoryLimit),
		positions: make(map[string]Position),
		settled:   make(map[string]Position),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit transforms text and rebuilds nodes and edges from the result. With
// preservePositions, nodes whose key already exists keep their position.
// Blank text clears the diagram. On a fatal error the previous snapshot stays
// in place, the engine moves to Errored and the error is returned.
func (e *Engine) Submit(text string, preservePositions bool) error {
	e.mu.Lock()
	if e.state == Loading {
		e.mu.Unlock()
		return ErrTransformInProgress
	}
	if strings.TrimSpace(text) == "" {
		e.state = Empty
		e.err = nil
		e.nodes, e.edges, e.warnings = nil, nil, nil
		e.exported = ""
		e.positions = make(map[string]Position)
		e.settled = make(map[string]Position)
		e.history.Reset()
		e.mu.Unlock()
		return nil
	}
	e.state = Loading
	e.mu.Unlock()

	start := e.now()
	res, err := e.tr.Transform(text)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.state = Errored
		e.err = err
		e.log.WithError(err).Error("schema transform failed")
		return err
	}
	e.apply(res, preservePositions)
	e.state = Ready
	e.err = nil
	e.log.WithFields(logrus.Fields{
		"nodes":    len(e.nodes),
		"edges":    len(e.edges),
		"warnings": len(e.warnings),
		"took":     e.now().Sub(start),
	}).Debug("diagram updated")
	return nil
}

func (e *Engine) apply(res *schema.TransformResult, preserve bool) {
	warnings := append([]schema.Warning(nil), res.Warnings...)
	declared := make(map[string]bool, len(res.Tables))
	for _, t := range res.Tables {
		declared[t.Namespace+"."+t.Name] = true
	}

	positions := make(map[string]Position, len(res.Tables))
	nodes := make([]Node, 0, len(res.Tables))
	byTable := make(map[string]int, len(res.Tables))
	for _, t := range res.Tables {
		name := t.Namespace + "." + t.Name
		key := t.Key()
		// An alias never takes the key of another table's declared name.
		if _, used := positions[key]; key != name && (declared[key] || used) {
			key = name
		}
		if _, used := positions[key]; used {
			warnings = append(warnings, schema.Warning{
				Message: "table is already on the diagram; node dropped",
				Context: name,
			})
			continue
		}
		pos, ok := e.positions[key]
		if !preserve || !ok {
			pos = e.layout.At(len(nodes))
		}
		positions[key] = pos
		byTable[name] = len(nodes)
		nodes = append(nodes, Node{ID: key, Label: t.Label(), Table: t, Position: pos})
	}

	sources := make(map[int]map[string]bool)
	edges := make([]Edge, 0, len(res.Relationships))
	for _, rel := range res.Relationships {
		pi, pok := byTable[rel.Parent.Namespace+"."+rel.Parent.Table]
		ci, cok := byTable[rel.Child.Namespace+"."+rel.Child.Table]
		if !pok || !cok {
			warnings = append(warnings, schema.Warning{
				Message: "relationship endpoints are not on the diagram; edge dropped",
				Context: rel.Child.String() + " -> " + rel.Parent.String(),
			})
			continue
		}
		if nodes[pi].Table.Column(rel.Parent.Column) == nil || nodes[ci].Table.Column(rel.Child.Column) == nil {
			warnings = append(warnings, schema.Warning{
				Message: "relationship column is not on the diagram; edge dropped",
				Context: rel.Child.String() + " -> " + rel.Parent.String(),
			})
			continue
		}
		if sources[pi] == nil {
			sources[pi] = make(map[string]bool)
		}
		sources[pi][rel.Parent.Column] = true
		edges = append(edges, Edge{
			ID:           rel.ID,
			Source:       nodes[pi].ID,
			Target:       nodes[ci].ID,
			SourceHandle: rel.Parent.Column,
			TargetHandle: rel.Child.Column,
			Relationship: rel,
		})
	}
	for i := range nodes {
		for _, c := range nodes[i].Table.Columns {
			if sources[i][c.Name] {
				nodes[i].SourceColumns = append(nodes[i].SourceColumns, c.Name)
			}
		}
	}

	e.nodes = nodes
	e.edges = edges
	e.warnings = warnings
	e.exported = res.ExportedText
	e.positions = positions
	e.settled = maps.Clone(positions)
}

// MoveNode updates a live position while a drag is in progress. It does not
// touch the history; call CommitDrag once the drag completes.
func (e *Engine) MoveNode(key string, pos Position) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.nodes {
		if e.nodes[i].ID == key {
			e.nodes[i].Position = pos
			e.positions[key] = pos
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownNode, key)
}

// CommitDrag records the current layout as a history entry. The first commit
// also records the layout it started from so it can be undone. A commit that
// changed nothing records nothing.
func (e *Engine) CommitDrag() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if maps.Equal(e.positions, e.settled) {
		return
	}
	now := e.now()
	if e.history.Len() == 0 {
		e.history.Push(Entry{Positions: e.settled, At: now})
	}
	e.history.Push(Entry{Positions: e.positions, At: now})
	e.settled = maps.Clone(e.positions)
}

func (e *Engine) Undo() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.history.Undo()
	if !ok {
		return ErrNothingToUndo
	}
	e.restore(entry)
	return nil
}

func (e *Engine) Redo() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.history.Redo()
	if !ok {
		return ErrNothingToRedo
	}
	e.restore(entry)
	return nil
}

// restore replaces the layout of every current node found in entry. Edges and
// table content are not tracked by history.
func (e *Engine) restore(entry Entry) {
	for i := range e.nodes {
		if pos, ok := entry.Positions[e.nodes[i].ID]; ok {
			e.nodes[i].Position = pos
			e.positions[e.nodes[i].ID] = pos
		}
	}
	e.settled = maps.Clone(e.positions)
}

func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanUndo()
}

func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanRedo()
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err is the error of the last failed transform, or nil.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Engine) Nodes() []Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Node(nil), e.nodes...)
}

func (e *Engine) Edges() []Edge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Edge(nil), e.edges...)
}

func (e *Engine) Warnings() []schema.Warning {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]schema.Warning(nil), e.warnings...)
}

// Snapshot is a consistent copy of everything a renderer needs.
type Snapshot struct {
	State        State            `json:"state"`
	Nodes        []Node           `json:"nodes"`
	Edges        []Edge           `json:"edges"`
	Warnings     []schema.Warning `json:"warnings"`
	Error        string           `json:"error,omitempty"`
	ExportedText string           `json:"exported_text"`
	CanUndo      bool             `json:"can_undo"`
	CanRedo      bool             `json:"can_redo"`
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{
		State:        e.state,
		Nodes:        append([]Node{}, e.nodes...),
		Edges:        append([]Edge{}, e.edges...),
		Warnings:     append([]schema.Warning{}, e.warnings...),
		ExportedText: e.exported,
		CanUndo:      e.history.CanUndo(),
		CanRedo:      e.history.CanRedo(),
	}
	if e.err != nil {
		s.Error = e.err.Error()
	}
	return s
}
