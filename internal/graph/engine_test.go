package graph

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erdlive/internal/schema"
	"erdlive/internal/transform"
)

const blogSchema = `
tables:
  - name: users
    columns:
      - {name: id, type: int, pk: true}
      - {name: email, type: varchar}
  - name: posts
    columns:
      - {name: id, type: int, pk: true}
      - {name: author_id, type: int, ref: "> users.id"}
`

const blogWithComments = blogSchema + `
  - name: comments
    columns:
      - {name: id, type: int, pk: true}
      - {name: post_id, type: int, ref: "> posts.id"}
`

type stubTransformer struct {
	res *schema.TransformResult
	err error
}

func (s stubTransformer) Transform(string) (*schema.TransformResult, error) {
	return s.res, s.err
}

type blockingTransformer struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingTransformer) Transform(string) (*schema.TransformResult, error) {
	close(b.started)
	<-b.release
	return &schema.TransformResult{}, nil
}

func nodeByID(t *testing.T, e *Engine, id string) Node {
	t.Helper()
	for _, n := range e.Nodes() {
		if n.ID == id {
			return n
		}
	}
	t.Fatalf("node %s not found", id)
	return Node{}
}

func TestSubmitBuildsNodesAndEdges(t *testing.T) {
	e := NewEngine(transform.New())
	assert.Equal(t, Empty, e.State())

	require.NoError(t, e.Submit(blogSchema, false))
	assert.Equal(t, Ready, e.State())
	assert.NoError(t, e.Err())

	nodes := e.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, "public.users", nodes[0].ID)
	assert.Equal(t, "users", nodes[0].Label)
	assert.Equal(t, Position{X: 0, Y: 0}, nodes[0].Position)
	assert.Equal(t, Position{X: 0, Y: 240}, nodes[1].Position)
	assert.Equal(t, []string{"id"}, nodes[0].SourceColumns)
	assert.Empty(t, nodes[1].SourceColumns)

	edges := e.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, "public.users", edges[0].Source)
	assert.Equal(t, "public.posts", edges[0].Target)
	assert.Equal(t, "id", edges[0].SourceHandle)
	assert.Equal(t, "author_id", edges[0].TargetHandle)
	assert.Equal(t, edges[0].Relationship.ID, edges[0].ID)
	assert.Empty(t, e.Warnings())
}

func TestEdgeIdsAreStable(t *testing.T) {
	e := NewEngine(transform.New())
	require.NoError(t, e.Submit(blogSchema, true))
	first := e.Edges()
	require.NoError(t, e.Submit(blogSchema, true))
	assert.Equal(t, first, e.Edges())
}

func TestPositionsAreSticky(t *testing.T) {
	e := NewEngine(transform.New())
	require.NoError(t, e.Submit(blogSchema, true))

	moved := Position{X: 512, Y: 64}
	require.NoError(t, e.MoveNode("public.users", moved))

	require.NoError(t, e.Submit(blogSchema, true))
	assert.Equal(t, moved, nodeByID(t, e, "public.users").Position)

	require.NoError(t, e.Submit(blogWithComments, true))
	assert.Equal(t, moved, nodeByID(t, e, "public.users").Position)
	assert.Equal(t, Position{X: 0, Y: 480}, nodeByID(t, e, "public.comments").Position)

	require.NoError(t, e.Submit(blogSchema, false))
	assert.Equal(t, Position{X: 0, Y: 0}, nodeByID(t, e, "public.users").Position)
}

func TestRemovedNodesLosePositions(t *testing.T) {
	e := NewEngine(transform.New())
	require.NoError(t, e.Submit(blogWithComments, true))
	require.NoError(t, e.MoveNode("public.comments", Position{X: 900, Y: 900}))

	require.NoError(t, e.Submit(blogSchema, true))
	assert.Len(t, e.Nodes(), 2)

	require.NoError(t, e.Submit(blogWithComments, true))
	assert.Equal(t, Position{X: 0, Y: 480}, nodeByID(t, e, "public.comments").Position)
}

func TestGridLayoutIsColumnMajor(t *testing.T) {
	l := Layout{PerColumn: 2, SpacingX: 100, SpacingY: 50, OriginX: 10, OriginY: 20}
	assert.Equal(t, Position{X: 10, Y: 20}, l.At(0))
	assert.Equal(t, Position{X: 10, Y: 70}, l.At(1))
	assert.Equal(t, Position{X: 110, Y: 20}, l.At(2))
	assert.Equal(t, Position{X: 210, Y: 70}, l.At(5))

	e := NewEngine(transform.New(), WithLayout(l))
	require.NoError(t, e.Submit(blogWithComments, false))
	assert.Equal(t, Position{X: 110, Y: 20}, nodeByID(t, e, "public.comments").Position)
}

func TestErroredKeepsPreviousSnapshot(t *testing.T) {
	e := NewEngine(transform.New())
	require.NoError(t, e.Submit(blogSchema, false))

	err := e.Submit("tables: [", true)
	require.Error(t, err)
	assert.Equal(t, Errored, e.State())
	assert.Equal(t, err, e.Err())
	assert.Len(t, e.Nodes(), 2)
	assert.Len(t, e.Edges(), 1)
	assert.NotEmpty(t, e.Snapshot().Error)

	require.NoError(t, e.Submit(blogSchema, true))
	assert.Equal(t, Ready, e.State())
	assert.NoError(t, e.Err())
	assert.Empty(t, e.Snapshot().Error)
}

func TestLimitErrorIsFatal(t *testing.T) {
	e := NewEngine(transform.New(transform.WithLimits(transform.Limits{MaxTables: 1})))
	err := e.Submit(blogSchema, false)
	require.ErrorIs(t, err, transform.ErrLimitExceeded)
	assert.Equal(t, Errored, e.State())
	assert.Empty(t, e.Nodes())
}

func TestBlankTextEmptiesDiagram(t *testing.T) {
	e := NewEngine(transform.New())
	require.NoError(t, e.Submit(blogSchema, false))
	require.NoError(t, e.Submit("  \n ", true))
	assert.Equal(t, Empty, e.State())
	assert.Empty(t, e.Nodes())
	assert.Empty(t, e.Edges())
	assert.Empty(t, e.Snapshot().ExportedText)
}

func TestConcurrentSubmitIsRejected(t *testing.T) {
	bt := &blockingTransformer{started: make(chan struct{}), release: make(chan struct{})}
	e := NewEngine(bt)

	errc := make(chan error, 1)
	go func() { errc <- e.Submit("a", false) }()
	<-bt.started

	assert.Equal(t, Loading, e.State())
	assert.ErrorIs(t, e.Submit("b", false), ErrTransformInProgress)
	assert.ErrorIs(t, e.Submit("", false), ErrTransformInProgress)

	close(bt.release)
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("submit did not return")
	}
	assert.Equal(t, Ready, e.State())
}

func TestMoveUnknownNode(t *testing.T) {
	e := NewEngine(transform.New())
	require.NoError(t, e.Submit(blogSchema, false))
	assert.ErrorIs(t, e.MoveNode("public.ghosts", Position{}), ErrUnknownNode)
}

func TestUndoRedo(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEngine(transform.New(), WithClock(func() time.Time { return clock }))
	require.NoError(t, e.Submit(blogSchema, false))
	users := func() Position { return nodeByID(t, e, "public.users").Position }

	assert.False(t, e.CanUndo())
	assert.ErrorIs(t, e.Undo(), ErrNothingToUndo)
	assert.ErrorIs(t, e.Redo(), ErrNothingToRedo)

	// Intermediate moves are not recorded.
	require.NoError(t, e.MoveNode("public.users", Position{X: 5, Y: 5}))
	require.NoError(t, e.MoveNode("public.users", Position{X: 10, Y: 10}))
	assert.False(t, e.CanUndo())
	e.CommitDrag()
	assert.True(t, e.CanUndo())
	assert.False(t, e.CanRedo())

	edges := e.Edges()
	require.NoError(t, e.Undo())
	assert.Equal(t, Position{X: 0, Y: 0}, users())
	assert.Equal(t, edges, e.Edges())
	assert.True(t, e.CanRedo())
	assert.False(t, e.CanUndo())

	require.NoError(t, e.Redo())
	assert.Equal(t, Position{X: 10, Y: 10}, users())

	require.NoError(t, e.MoveNode("public.users", Position{X: 20, Y: 20}))
	e.CommitDrag()
	require.NoError(t, e.Undo())
	require.NoError(t, e.Undo())
	assert.Equal(t, Position{X: 0, Y: 0}, users())
	require.NoError(t, e.Redo())
	assert.Equal(t, Position{X: 10, Y: 10}, users())

	// A new commit after undo discards the future.
	require.NoError(t, e.MoveNode("public.users", Position{X: 30, Y: 30}))
	e.CommitDrag()
	assert.False(t, e.CanRedo())
	require.NoError(t, e.Undo())
	assert.Equal(t, Position{X: 10, Y: 10}, users())
}

func TestTransformsDoNotPushHistory(t *testing.T) {
	e := NewEngine(transform.New())
	require.NoError(t, e.Submit(blogSchema, true))
	require.NoError(t, e.Submit(blogWithComments, true))
	require.NoError(t, e.Submit(blogSchema, true))
	assert.False(t, e.CanUndo())
	assert.False(t, e.CanRedo())
}

func TestEdgeDroppedWhenEndpointMissing(t *testing.T) {
	users := schema.Table{Namespace: "public", Name: "users", Columns: []schema.Column{{Name: "id", Type: "int"}}}
	posts := schema.Table{Namespace: "public", Name: "posts", Columns: []schema.Column{{Name: "author_id", Type: "int"}}}
	res := &schema.TransformResult{
		Tables: []schema.Table{users, posts},
		Relationships: []schema.Relationship{
			{
				ID:     "r1",
				Parent: schema.Endpoint{Namespace: "public", Table: "users", Column: "uuid"},
				Child:  schema.Endpoint{Namespace: "public", Table: "posts", Column: "author_id"},
			},
			{
				ID:     "r2",
				Parent: schema.Endpoint{Namespace: "public", Table: "accounts", Column: "id"},
				Child:  schema.Endpoint{Namespace: "public", Table: "posts", Column: "author_id"},
			},
		},
		Warnings: []schema.Warning{{Message: "upstream"}},
	}
	e := NewEngine(stubTransformer{res: res})
	require.NoError(t, e.Submit("x", false))

	assert.Empty(t, e.Edges())
	warnings := e.Warnings()
	require.Len(t, warnings, 3)
	assert.Equal(t, "upstream", warnings[0].Message)
	assert.Contains(t, warnings[1].Message, "edge dropped")
	assert.Contains(t, warnings[2].Message, "edge dropped")
}

func TestSnapshotJSON(t *testing.T) {
	e := NewEngine(transform.New())
	require.NoError(t, e.Submit(blogSchema, false))

	snap := e.Snapshot()
	assert.Equal(t, Ready, snap.State)
	assert.Contains(t, snap.ExportedText, `CREATE TABLE "public"."users"`)

	b, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"state":"ready"`)
	assert.Contains(t, string(b), `"source":"public.users"`)
}

func TestBlankTextClearsHistory(t *testing.T) {
	e := NewEngine(transform.New())
	require.NoError(t, e.Submit(blogSchema, false))
	require.NoError(t, e.MoveNode("public.users", Position{X: 1, Y: 1}))
	e.CommitDrag()
	require.True(t, e.CanUndo())

	require.NoError(t, e.Submit("", false))
	assert.False(t, e.CanUndo())
}

func TestAliasClashKeepsNodeKeysUnique(t *testing.T) {
	const aliasFirst = `
tables:
  - name: a
    alias: b
    columns: [{name: id, type: int, pk: true}]
  - name: b
    columns: [{name: id, type: int, pk: true}]
`
	const tableFirst = `
tables:
  - name: b
    columns: [{name: id, type: int, pk: true}]
  - name: a
    alias: b
    columns: [{name: id, type: int, pk: true}]
`
	for name, text := range map[string]string{"alias first": aliasFirst, "table first": tableFirst} {
		t.Run(name, func(t *testing.T) {
			e := NewEngine(transform.New())
			require.NoError(t, e.Submit(text, true))

			nodes := e.Nodes()
			require.Len(t, nodes, 2)
			ids := map[string]string{}
			for _, n := range nodes {
				ids[n.ID] = n.Table.Name
			}
			assert.Equal(t, map[string]string{"public.a": "a", "public.b": "b"}, ids)

			moved := Position{X: 700, Y: 700}
			require.NoError(t, e.MoveNode("public.b", moved))
			require.NoError(t, e.Submit(text, true))
			assert.Equal(t, moved, nodeByID(t, e, "public.b").Position)
			assert.NotEqual(t, moved, nodeByID(t, e, "public.a").Position)
		})
	}
}

func TestClashingKeysFromTransformerAreResolved(t *testing.T) {
	col := []schema.Column{{Name: "id", Type: "int"}}
	res := &schema.TransformResult{Tables: []schema.Table{
		{Namespace: "public", Name: "a", Alias: "b", Columns: col},
		{Namespace: "public", Name: "b", Columns: col},
		{Namespace: "public", Name: "c", Alias: "b", Columns: col},
		{Namespace: "public", Name: "c", Columns: col},
	}}
	e := NewEngine(stubTransformer{res: res})
	require.NoError(t, e.Submit("x", false))

	var ids []string
	for _, n := range e.Nodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"public.a", "public.b", "public.c"}, ids)
	require.Len(t, e.Warnings(), 1)
	assert.Equal(t, "public.c", e.Warnings()[0].Context)
}

func TestCommitWithoutMoveRecordsNothing(t *testing.T) {
	e := NewEngine(transform.New())
	require.NoError(t, e.Submit(blogSchema, false))

	e.CommitDrag()
	assert.False(t, e.CanUndo())

	require.NoError(t, e.MoveNode("public.users", Position{X: 40, Y: 40}))
	e.CommitDrag()
	e.CommitDrag()
	require.NoError(t, e.Undo())
	assert.Equal(t, Position{X: 0, Y: 0}, nodeByID(t, e, "public.users").Position)
	assert.False(t, e.CanUndo())

	// Moving a node back to where it settled is not a change either.
	require.NoError(t, e.Redo())
	require.NoError(t, e.MoveNode("public.users", Position{X: 1, Y: 1}))
	require.NoError(t, e.MoveNode("public.users", Position{X: 40, Y: 40}))
	e.CommitDrag()
	assert.True(t, e.CanUndo())
	assert.False(t, e.CanRedo())
	require.NoError(t, e.Undo())
	assert.False(t, e.CanUndo())
}
