package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erdlive/internal/graph"
	"erdlive/internal/transform"
	"erdlive/pkg/config"
)

const shopSchema = `
tables:
  - name: customers
    columns:
      - {name: id, type: int, pk: true}
      - {name: name, type: varchar}
  - name: orders
    columns:
      - {name: id, type: int, pk: true}
      - {name: customer_id, type: int, ref: "> customers.id"}
`

func setupRouter(t *testing.T) (*gin.Engine, *graph.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, _ := test.NewNullLogger()
	engine := graph.NewEngine(transform.New())
	return NewRouter(engine, config.Default().Server, log), engine
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var snap map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["error"]
}

func TestHealthz(t *testing.T) {
	router, _ := setupRouter(t)
	w := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestDiagramStartsEmpty(t *testing.T) {
	router, _ := setupRouter(t)
	w := do(t, router, http.MethodGet, "/api/diagram", nil)
	require.Equal(t, http.StatusOK, w.Code)

	snap := decodeSnapshot(t, w)
	assert.Equal(t, "empty", snap["state"])
	assert.Empty(t, snap["nodes"])
}

func TestSubmitSchema(t *testing.T) {
	router, engine := setupRouter(t)

	w := do(t, router, http.MethodPut, "/api/schema", submitRequest{Text: shopSchema})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	snap := decodeSnapshot(t, w)
	assert.Equal(t, "ready", snap["state"])
	assert.Len(t, snap["nodes"], 2)
	assert.Len(t, snap["edges"], 1)
	assert.Equal(t, graph.Ready, engine.State())
}

func TestSubmitRawText(t *testing.T) {
	router, engine := setupRouter(t)

	req := httptest.NewRequest(http.MethodPut, "/api/schema", strings.NewReader(shopSchema))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, engine.Nodes(), 2)
}

func TestSubmitFatalErrors(t *testing.T) {
	router, engine := setupRouter(t)
	require.NoError(t, engine.Submit(shopSchema, false))

	w := do(t, router, http.MethodPut, "/api/schema", submitRequest{Text: "tables: [unclosed"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.NotEmpty(t, errorMessage(t, w))

	w = do(t, router, http.MethodPut, "/api/schema", submitRequest{Text: `
tables:
  - name: orders
    columns:
      - {name: id, type: int, ref: "> ghosts.id"}
`})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, errorMessage(t, w), "can't find table")

	// The previous diagram is still served.
	snap := decodeSnapshot(t, do(t, router, http.MethodGet, "/api/diagram", nil))
	assert.Equal(t, "errored", snap["state"])
	assert.Len(t, snap["nodes"], 2)
	assert.NotEmpty(t, snap["error"])
}

func TestSubmitBadBody(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPut, "/api/schema", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorMessage(t, w), "invalid request body")
}

func TestLayoutAndHistory(t *testing.T) {
	router, engine := setupRouter(t)
	require.NoError(t, engine.Submit(shopSchema, false))

	w := do(t, router, http.MethodPost, "/api/history/undo", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	moved := graph.Position{X: 640, Y: 80}
	w = do(t, router, http.MethodPost, "/api/layout", layoutRequest{
		Positions: map[string]graph.Position{"public.orders": moved},
		Commit:    true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decodeSnapshot(t, w)["can_undo"])

	w = do(t, router, http.MethodPost, "/api/history/undo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, graph.Position{X: 0, Y: 240}, nodePosition(t, engine, "public.orders"))

	w = do(t, router, http.MethodPost, "/api/history/redo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, moved, nodePosition(t, engine, "public.orders"))

	w = do(t, router, http.MethodPost, "/api/history/redo", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLayoutUnknownNode(t *testing.T) {
	router, engine := setupRouter(t)
	require.NoError(t, engine.Submit(shopSchema, false))

	w := do(t, router, http.MethodPost, "/api/layout", layoutRequest{
		Positions: map[string]graph.Position{"public.ghosts": {X: 1, Y: 1}},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, errorMessage(t, w), "public.ghosts")

	w = do(t, router, http.MethodPost, "/api/layout", map[string]any{"commit": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExport(t *testing.T) {
	router, engine := setupRouter(t)
	require.NoError(t, engine.Submit(shopSchema, false))

	w := do(t, router, http.MethodGet, "/api/export/mermaid", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "erDiagram"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "schema.mmd")

	w = do(t, router, http.MethodGet, "/api/export/SQL", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, engine.Snapshot().ExportedText, w.Body.String())

	w = do(t, router, http.MethodGet, "/api/export/svg", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorMessage(t, w), "unknown diagram format")
}

func TestCORS(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/diagram", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestErrorHandlerHidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, hook := test.NewNullLogger()

	router := gin.New()
	router.Use(ErrorHandler(log))
	router.GET("/boom", func(c *gin.Context) { c.Error(assert.AnError) })

	w := do(t, router, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, errorMessage(t, w), assert.AnError.Error())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func nodePosition(t *testing.T, e *graph.Engine, id string) graph.Position {
	t.Helper()
	for _, n := range e.Nodes() {
		if n.ID == id {
			return n.Position
		}
	}
	t.Fatalf("node %s not found", id)
	return graph.Position{}
}
