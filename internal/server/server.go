// Package server exposes a live diagram engine over HTTP so a diagram
// surface can submit schema text, drag nodes and walk the layout history.
package server

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"erdlive/internal/generators"
	"erdlive/internal/graph"
	"erdlive/pkg/config"
)

// Diagram is the part of *graph.Engine the handlers drive.
type Diagram interface {
	Submit(text string, preservePositions bool) error
	MoveNode(key string, pos graph.Position) error
	CommitDrag()
	Undo() error
	Redo() error
	Snapshot() graph.Snapshot
}

type DiagramHandler struct {
	diagram Diagram
	log     logrus.FieldLogger
}

func NewDiagramHandler(d Diagram, log logrus.FieldLogger) *DiagramHandler {
	return &DiagramHandler{diagram: d, log: log}
}

type submitRequest struct {
	Text              string `json:"text"`
	PreservePositions bool   `json:"preserve_positions"`
}

type layoutRequest struct {
	Positions map[string]graph.Position `json:"positions" binding:"required"`
	Commit    bool                      `json:"commit"`
}

// NewRouter wires the diagram routes behind recovery, request logging, CORS
// and error mapping.
func NewRouter(d Diagram, cfg config.ServerConfig, log logrus.FieldLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))
	if len(cfg.AllowOrigins) > 0 {
		router.Use(cors.New(corsConfig(cfg.AllowOrigins)))
	}
	router.Use(ErrorHandler(log))

	h := NewDiagramHandler(d, log)

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := router.Group("/api")
	{
		api.GET("/diagram", h.GetDiagram)
		api.PUT("/schema", h.SubmitSchema)
		api.POST("/layout", h.UpdateLayout)
		api.POST("/history/undo", h.Undo)
		api.POST("/history/redo", h.Redo)
		api.GET("/export/:format", h.Export)
	}

	return router
}

// New returns an http.Server for the diagram routes on cfg.Addr.
func New(d Diagram, cfg config.ServerConfig, log logrus.FieldLogger) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewRouter(d, cfg, log),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

func (h *DiagramHandler) GetDiagram(c *gin.Context) {
	c.JSON(http.StatusOK, h.diagram.Snapshot())
}

// SubmitSchema accepts a JSON body, or the raw schema text for any other
// content type.
func (h *DiagramHandler) SubmitSchema(c *gin.Context) {
	var req submitRequest
	if strings.HasPrefix(c.ContentType(), gin.MIMEJSON) {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	} else {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Error(fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		req.Text = string(body)
		req.PreservePositions = c.Query("preserve_positions") == "true"
	}

	if err := h.diagram.Submit(req.Text, req.PreservePositions); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.diagram.Snapshot())
}

// UpdateLayout moves nodes in key order. With commit set, the resulting
// layout becomes one undoable step.
func (h *DiagramHandler) UpdateLayout(c *gin.Context) {
	var req layoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	keys := make([]string, 0, len(req.Positions))
	for k := range req.Positions {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := h.diagram.MoveNode(k, req.Positions[k]); err != nil {
			c.Error(err)
			return
		}
	}
	if req.Commit {
		h.diagram.CommitDrag()
	}
	c.JSON(http.StatusOK, h.diagram.Snapshot())
}

func (h *DiagramHandler) Undo(c *gin.Context) {
	if err := h.diagram.Undo(); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.diagram.Snapshot())
}

func (h *DiagramHandler) Redo(c *gin.Context) {
	if err := h.diagram.Redo(); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.diagram.Snapshot())
}

func (h *DiagramHandler) Export(c *gin.Context) {
	format := strings.ToLower(c.Param("format"))
	out, err := generators.Render(format, h.diagram.Snapshot())
	if err != nil {
		c.Error(err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", "schema"+generators.Extension(format)))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(out))
}
