// Package api exposes the viewport over HTTP: view control, athlete state
// ingestion, gestures, entity listing, PNG snapshots and debug charts.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/banshee-data/saucemap/internal/mapview"
	"github.com/banshee-data/saucemap/internal/monitoring"
	"github.com/banshee-data/saucemap/internal/scene"
	"github.com/banshee-data/saucemap/internal/world"
)

// ANSI escape codes for request log colouring.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Server serves one viewport.
type Server struct {
	v        *mapview.Viewport
	snapshot scene.Backend
}

// NewServer returns a server for v. Snapshots are rendered with backend;
// nil falls back to the text outline.
func NewServer(v *mapview.Viewport, backend scene.Backend) *Server {
	if backend == nil {
		backend = scene.TextBackend{}
	}
	return &Server{v: v, snapshot: backend}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// requestLogger logs method, path, status and duration to the diag stream.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		monitoring.Diagf("[%s] %s %s%s%s %vms",
			statusCodeColor(c.Writer.Status()), c.Request.Method,
			colorCyan, c.Request.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	}
}

// Router builds the gin engine with every route mounted under /api/v1.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	api := r.Group("/api/v1")
	{
		api.GET("/health", s.health)
		api.GET("/view", s.getView)
		api.PUT("/view", s.putView)
		api.PUT("/course", s.putCourse)
		api.PUT("/road", s.putRoad)
		api.PUT("/route", s.putRoute)
		api.PUT("/watching", s.putWatching)
		api.PUT("/athlete", s.putAthlete)
		api.POST("/athletes/states", s.postStates)
		api.POST("/pointer", s.postPointer)
		api.POST("/wheel", s.postWheel)
		api.POST("/pause", s.postPause)
		api.GET("/entities", s.listEntities)
		api.POST("/points", s.postPoint)
		api.POST("/entities/:id/pin", s.pinEntity)
		api.DELETE("/entities/:id", s.deleteEntity)
		api.GET("/snapshot.png", s.getSnapshot)
		api.GET("/snapshot.txt", s.getOutline)

		debug := api.Group("/debug")
		{
			debug.GET("/entities", s.entitiesChart)
			debug.GET("/frames", s.framesChart)
		}
	}
	return r
}

// abortError writes a JSON error body. Not-found sentinels map to 404.
func abortError(c *gin.Context, status int, err error) {
	if errors.Is(err, world.ErrNotFound) || errors.Is(err, mapview.ErrUnknownCourse) {
		status = http.StatusNotFound
	}
	if status >= 500 {
		monitoring.Opsf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
