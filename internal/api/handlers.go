package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/banshee-data/saucemap/internal/mapview"
	"github.com/banshee-data/saucemap/internal/scene"
	"github.com/banshee-data/saucemap/internal/version"
	"github.com/banshee-data/saucemap/internal/world"
)

func (s *Server) health(c *gin.Context) {
	st := s.v.State()
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"courseId": st.CourseID,
		"entities": st.Entities,
		"paused":   st.Paused,
		"version":  version.Version,
	})
}

func (s *Server) getView(c *gin.Context) {
	c.JSON(http.StatusOK, s.v.State())
}

// BoundsRequest fits the view to a world rectangle.
type BoundsRequest struct {
	TopLeft     [2]float64 `json:"topLeft"`
	BottomRight [2]float64 `json:"bottomRight"`
	Pad         *float64   `json:"pad"`
}

// ViewRequest changes view settings. Absent fields are left alone.
type ViewRequest struct {
	Zoom             *float64       `json:"zoom"`
	Center           *[2]float64    `json:"center"`
	Heading          *float64       `json:"heading"`
	HeadingOffset    *float64       `json:"headingOffset"`
	TiltShift        *float64       `json:"tiltShift"`
	ZoomPriorityTilt *bool          `json:"zoomPriorityTilt"`
	Quality          *float64       `json:"quality" binding:"omitempty,gt=0,lte=1"`
	Opacity          *float64       `json:"opacity"`
	Sparkle          *bool          `json:"sparkle"`
	FPSLimit         *int           `json:"fpsLimit"`
	VerticalOffset   *float64       `json:"verticalOffset"`
	AutoHeading      *bool          `json:"autoHeading"`
	AutoCenter       *bool          `json:"autoCenter"`
	Style            *string        `json:"style"`
	Size             *[2]float64    `json:"size"`
	Bounds           *BoundsRequest `json:"bounds"`
	DragOffset       *[2]float64    `json:"dragOffset"`
}

func (s *Server) putView(c *gin.Context) {
	var req ViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	v := s.v
	if req.Size != nil {
		v.SetSize(req.Size[0], req.Size[1])
	}
	if req.Style != nil {
		v.SetStyle(c.Request.Context(), *req.Style)
	}
	if req.Quality != nil {
		v.SetQuality(*req.Quality)
	}
	if req.AutoHeading != nil {
		v.SetAutoHeading(*req.AutoHeading)
	}
	if req.AutoCenter != nil {
		v.SetAutoCenter(*req.AutoCenter)
	}
	if req.ZoomPriorityTilt != nil {
		v.SetZoomPriorityTilt(*req.ZoomPriorityTilt)
	}
	if req.TiltShift != nil {
		v.SetTiltShift(*req.TiltShift)
	}
	if req.Zoom != nil {
		v.SetZoom(*req.Zoom)
	}
	if req.Center != nil {
		v.SetCenter(req.Center[0], req.Center[1])
	}
	if req.Bounds != nil {
		pad := -1.0
		if req.Bounds.Pad != nil {
			pad = *req.Bounds.Pad
		}
		v.SetBounds(req.Bounds.TopLeft, req.Bounds.BottomRight, pad)
	}
	if req.Heading != nil {
		v.SetHeading(*req.Heading)
	}
	if req.HeadingOffset != nil {
		v.SetHeadingOffset(*req.HeadingOffset)
	}
	if req.DragOffset != nil {
		v.SetDragOffset(req.DragOffset[0], req.DragOffset[1])
	}
	if req.Opacity != nil {
		v.SetOpacity(*req.Opacity)
	}
	if req.Sparkle != nil {
		v.SetSparkle(*req.Sparkle)
	}
	if req.FPSLimit != nil {
		v.SetFPSLimit(*req.FPSLimit)
	}
	if req.VerticalOffset != nil {
		v.SetVerticalOffset(*req.VerticalOffset)
	}
	c.JSON(http.StatusOK, v.State())
}

type courseRequest struct {
	CourseID     int  `json:"courseId" binding:"required"`
	PortalRoadID *int `json:"portalRoadId"`
}

func (s *Server) putCourse(c *gin.Context) {
	var req courseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	var opts []mapview.CourseOption
	if req.PortalRoadID != nil {
		opts = append(opts, mapview.WithPortalRoad(*req.PortalRoadID))
	}
	if err := s.v.SetCourse(c.Request.Context(), req.CourseID, opts...); err != nil {
		abortError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, s.v.State())
}

type roadRequest struct {
	RoadID int `json:"roadId"`
}

func (s *Server) putRoad(c *gin.Context) {
	var req roadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	s.v.SetActiveRoad(req.RoadID)
	c.JSON(http.StatusOK, s.v.State())
}

type routeRequest struct {
	RouteID int `json:"routeId" binding:"required"`
	Laps    int `json:"laps" binding:"gte=0"`
}

func (s *Server) putRoute(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	route, err := s.v.SetActiveRoute(c.Request.Context(), req.RouteID, req.Laps)
	if err != nil {
		abortError(c, http.StatusBadGateway, err)
		return
	}
	if route == nil {
		abortError(c, http.StatusNotFound, fmt.Errorf("route %d: %w", req.RouteID, world.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"routeId":  route.ID,
		"name":     route.Name,
		"laps":     s.v.State().RouteLaps,
		"courseId": route.CourseID,
	})
}

type athleteRequest struct {
	AthleteID int `json:"athleteId" binding:"gte=0"`
}

func (s *Server) putWatching(c *gin.Context) {
	var req athleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	s.v.SetWatching(req.AthleteID)
	c.JSON(http.StatusOK, s.v.State())
}

func (s *Server) putAthlete(c *gin.Context) {
	var req athleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	s.v.SetAthlete(req.AthleteID)
	c.JSON(http.StatusOK, s.v.State())
}

func (s *Server) postStates(c *gin.Context) {
	var states []world.AthleteState
	if err := c.ShouldBindJSON(&states); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.v.RenderAthleteStates(c.Request.Context(), states); err != nil {
		abortError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": len(states)})
}

type pointerRequest struct {
	Type  string               `json:"type" binding:"required,oneof=down move up cancel"`
	Event mapview.PointerEvent `json:"event"`
}

func (s *Server) postPointer(c *gin.Context) {
	var req pointerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	switch req.Type {
	case "down":
		s.v.PointerDown(req.Event)
	case "move":
		s.v.PointerMove(req.Event)
	case "up":
		s.v.PointerUp(req.Event)
	case "cancel":
		s.v.PointerCancel(req.Event)
	}
	c.Status(http.StatusNoContent)
}

type wheelRequest struct {
	DeltaY float64 `json:"deltaY"`
}

func (s *Server) postWheel(c *gin.Context) {
	var req wheelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	s.v.Wheel(req.DeltaY)
	c.Status(http.StatusNoContent)
}

type pauseRequest struct {
	Hold bool `json:"hold"`
}

// postPause takes or releases one pause hold.
func (s *Server) postPause(c *gin.Context) {
	var req pauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	if req.Hold {
		s.v.IncPause()
	} else {
		if !s.v.Paused() {
			abortError(c, http.StatusConflict, errors.New("viewport is not paused"))
			return
		}
		s.v.DecPause()
	}
	c.JSON(http.StatusOK, gin.H{"paused": s.v.Paused()})
}

func (s *Server) listEntities(c *gin.Context) {
	c.JSON(http.StatusOK, s.v.Entities())
}

type pointRequest struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Class string  `json:"class"`
}

func (s *Server) postPoint(c *gin.Context) {
	var req pointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	ent, err := s.v.AddPoint(req.X, req.Y, req.Class)
	if err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": ent.ID()})
}

func (s *Server) pinEntity(c *gin.Context) {
	pinned, err := s.v.ClickEntity(c.Param("id"))
	if err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "pinned": pinned})
}

func (s *Server) deleteEntity(c *gin.Context) {
	id := c.Param("id")
	if !s.v.RemoveEntity(id) {
		abortError(c, http.StatusNotFound, fmt.Errorf("entity %s: %w", id, world.ErrNotFound))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getSnapshot(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.v.Snapshot(&buf, s.snapshot); err != nil {
		abortError(c, http.StatusInternalServerError, fmt.Errorf("failed to render snapshot: %w", err))
		return
	}
	contentType := "image/png"
	if _, ok := s.snapshot.(scene.TextBackend); ok {
		contentType = "text/plain; charset=utf-8"
	}
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (s *Server) getOutline(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.v.Snapshot(&buf, scene.TextBackend{}); err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}
