package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erdlive/internal/graph"
	"erdlive/internal/transform"
)

type recorder struct {
	mu    sync.Mutex
	texts []string
	busy  int // number of submits to reject as in progress
}

func (r *recorder) Submit(text string, preserve bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !preserve {
		panic("watcher must preserve positions")
	}
	if r.busy > 0 {
		r.busy--
		return graph.ErrTransformInProgress
	}
	r.texts = append(r.texts, text)
	return nil
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.texts) == 0 {
		return ""
	}
	return r.texts[len(r.texts)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

func start(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func writeFile(t *testing.T, path, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
}

func TestWatcherSubmitsOnStartAndChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	writeFile(t, path, "one")

	rec := &recorder{}
	start(t, New(path, rec, WithDebounce(20*time.Millisecond)))

	require.Eventually(t, func() bool { return rec.last() == "one" }, 2*time.Second, 10*time.Millisecond)

	writeFile(t, path, "two")
	require.Eventually(t, func() bool { return rec.last() == "two" }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherDebouncesBursts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	writeFile(t, path, "v0")

	rec := &recorder{}
	start(t, New(path, rec, WithDebounce(200*time.Millisecond)))
	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	for _, v := range []string{"v1", "v2", "v3"} {
		writeFile(t, path, v)
	}
	require.Eventually(t, func() bool { return rec.last() == "v3" }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, rec.count())
}

func TestWatcherIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	writeFile(t, path, "schema")

	rec := &recorder{}
	start(t, New(path, rec, WithDebounce(20*time.Millisecond)))
	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	writeFile(t, filepath.Join(dir, "notes.txt"), "unrelated")
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestWatcherRetriesWhileBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	writeFile(t, path, "busy")

	rec := &recorder{busy: 2}
	start(t, New(path, rec, WithDebounce(20*time.Millisecond)))

	require.Eventually(t, func() bool { return rec.last() == "busy" }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestWatcherDrivesEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	writeFile(t, path, `
tables:
  - name: users
    columns:
      - {name: id, type: int, pk: true}
`)

	log, _ := test.NewNullLogger()
	engine := graph.NewEngine(transform.New())
	updates := make(chan error, 8)
	start(t, New(path, engine,
		WithDebounce(20*time.Millisecond),
		WithLogger(log),
		OnUpdate(func(err error) {
			select {
			case updates <- err:
			default:
			}
		}),
	))

	require.NoError(t, <-updates)
	require.Len(t, engine.Nodes(), 1)
	moved := graph.Position{X: 50, Y: 60}
	require.NoError(t, engine.MoveNode("public.users", moved))

	writeFile(t, path, `
tables:
  - name: users
    columns:
      - {name: id, type: int, pk: true}
  - name: posts
    columns:
      - {name: id, type: int, pk: true}
`)
	require.Eventually(t, func() bool { return len(engine.Nodes()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, moved, engine.Nodes()[0].Position)

	writeFile(t, path, "tables: [broken")
	require.Eventually(t, func() bool { return engine.State() == graph.Errored }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, engine.Nodes(), 2)
}
