package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/coursereel/internal/item"
	"github.com/zulandar/coursereel/internal/review"
	"github.com/zulandar/coursereel/internal/store"
	"github.com/zulandar/coursereel/internal/validate"
)

// registerRoutes sets up all API routes on the Gin router.
func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := router.Group("/api")
	api.GET("/catalog", s.handleCatalog)
	api.GET("/items", s.handleListItems)
	api.GET("/items/:id", s.handleGetItem)
	api.GET("/reviews/pending", s.handlePendingReviews)
	api.GET("/reviews/decisions", s.handleListDecisions)
	api.POST("/reviews/decisions", s.handleRecordDecision)
	api.GET("/events", s.handleSSE)
	api.GET("/ws", s.handleWebSocket)

	authored := api.Group("", requireScope())
	authored.POST("/items", s.handleCreateItem)
	authored.GET("/items/:id/validation", s.handleValidate)
	authored.PATCH("/items/:id/metadata", s.handleUpdateMetadata)
	authored.POST("/items/:id/files", s.handleAddFiles)
	authored.DELETE("/items/:id/files/:fileId", s.handleRemoveFile)
	authored.PUT("/items/:id/script", s.handleUpdateScript)
	authored.POST("/items/:id/run", s.handleRun)
	authored.POST("/items/:id/retry", s.handleRetry)
	authored.POST("/items/:id/submit", s.handleSubmit)
	authored.POST("/items/:id/reopen", s.handleReopen)
	authored.DELETE("/items/:id", s.handleDelete)
}

type itemResponse struct {
	Item       item.WorkItem    `json:"item"`
	Validation *validate.Result `json:"validation,omitempty"`
}

func respond(c *gin.Context, code int, w item.WorkItem, result *validate.Result) {
	if result != nil {
		merged := validate.Merge(*result)
		result = &merged
	}
	c.JSON(code, itemResponse{Item: w, Validation: result})
}

// respondGated answers a command that may be refused by validation: a clean
// result is 200, a refused one 422 with the unchanged item and the issues.
func respondGated(c *gin.Context, w item.WorkItem, result validate.Result) {
	code := http.StatusOK
	if !result.OK {
		code = http.StatusUnprocessableEntity
	}
	respond(c, code, w, &result)
}

func writeError(c *gin.Context, err error) {
	var conflict *store.ConflictError
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "runningId": conflict.RunningID})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrLocked):
		c.JSON(http.StatusLocked, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrOutOfScope):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrInvalidState), errors.Is(err, review.ErrNoRequest):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleCatalog(c *gin.Context) {
	p := s.svc.Catalog().Provider()
	c.JSON(http.StatusOK, gin.H{
		"categories":   p.Categories(),
		"departments":  p.Departments(),
		"templates":    p.Templates(),
		"jobTrainings": p.JobTrainings(),
	})
}

func (s *Server) handleListItems(c *gin.Context) {
	f := store.Filter{
		CategoryID: c.Query("category"),
		CreatedBy:  c.Query("createdBy"),
		Query:      c.Query("q"),
		Sort:       c.Query("sort"),
		Ascending:  strings.EqualFold(c.Query("order"), "asc"),
	}
	if raw := c.Query("status"); raw != "" {
		status, _, ok := item.ParseStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + raw})
			return
		}
		f.Status = status
	}
	items := s.svc.List(f)
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (s *Server) handleGetItem(c *gin.Context) {
	w, err := s.svc.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, w, nil)
}

func (s *Server) handleCreateItem(c *gin.Context) {
	var patch store.MetadataPatch
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	w, result, err := s.svc.CreateDraft(c.Request.Context(), scopeOf(c), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, w, &result)
}

func (s *Server) handleValidate(c *gin.Context) {
	result, err := s.svc.Validate(c.Param("id"), scopeOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleUpdateMetadata(c *gin.Context) {
	var patch store.MetadataPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	w, result, err := s.svc.UpdateMetadata(c.Request.Context(), c.Param("id"), scopeOf(c), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, w, &result)
}

type fileInput struct {
	ID   string `json:"id"`
	Name string `json:"name" binding:"required"`
	Size int64  `json:"size" binding:"required,gt=0"`
	MIME string `json:"mime"`
}

type addFilesRequest struct {
	Files []fileInput `json:"files" binding:"required,min=1,dive"`
}

func (s *Server) handleAddFiles(c *gin.Context) {
	var req addFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	files := make([]item.SourceFile, len(req.Files))
	for i, f := range req.Files {
		files[i] = item.SourceFile{ID: f.ID, Name: f.Name, Size: f.Size, MIME: f.MIME}
	}
	w, result, err := s.svc.AddSourceFiles(c.Request.Context(), c.Param("id"), scopeOf(c), files)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, w, &result)
}

func (s *Server) handleRemoveFile(c *gin.Context) {
	w, err := s.svc.RemoveSourceFile(c.Request.Context(), c.Param("id"), scopeOf(c), c.Param("fileId"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, w, nil)
}

type scriptRequest struct {
	Script *string `json:"script" binding:"required"`
}

func (s *Server) handleUpdateScript(c *gin.Context) {
	var req scriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	w, err := s.svc.UpdateScript(c.Request.Context(), c.Param("id"), scopeOf(c), *req.Script)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, w, nil)
}

type runRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (s *Server) handleRun(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, ok := item.ParseMode(strings.ToUpper(req.Mode))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown mode: " + req.Mode})
		return
	}
	w, result, err := s.svc.RunPipeline(c.Request.Context(), c.Param("id"), scopeOf(c), mode)
	if err != nil {
		writeError(c, err)
		return
	}
	respondGated(c, w, result)
}

func (s *Server) handleRetry(c *gin.Context) {
	w, result, err := s.svc.Retry(c.Request.Context(), c.Param("id"), scopeOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respondGated(c, w, result)
}

func (s *Server) handleSubmit(c *gin.Context) {
	w, result, err := s.svc.RequestReview(c.Request.Context(), c.Param("id"), scopeOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respondGated(c, w, result)
}

func (s *Server) handleReopen(c *gin.Context) {
	w, err := s.svc.ReopenRejected(c.Request.Context(), c.Param("id"), scopeOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, w, nil)
}

func (s *Server) handleDelete(c *gin.Context) {
	if err := s.svc.DeleteDraft(c.Request.Context(), c.Param("id"), scopeOf(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handlePendingReviews(c *gin.Context) {
	if s.ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "review ledger not configured"})
		return
	}
	pending, err := s.ledger.PendingRequests(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending, "count": len(pending)})
}

func (s *Server) handleListDecisions(c *gin.Context) {
	if s.ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "review ledger not configured"})
		return
	}
	decisions, err := s.ledger.ListDecisions(c.Request.Context(), c.Query("contentId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions})
}

type decisionRequest struct {
	ContentID string `json:"contentId" binding:"required"`
	Stage     string `json:"stage" binding:"required"`
	Status    string `json:"status" binding:"required"`
	Comment   string `json:"comment"`
	Reviewer  string `json:"reviewer"`
}

// handleRecordDecision appends a verdict and reconciles the item right away
// so the author does not wait for the next sync tick.
func (s *Server) handleRecordDecision(c *gin.Context) {
	if s.ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "review ledger not configured"})
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	stage, ok := item.ParseStage(req.Stage)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown stage: " + req.Stage})
		return
	}
	status, ok := review.ParseStatus(req.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + req.Status})
		return
	}

	ctx := c.Request.Context()
	d, err := s.ledger.RecordDecision(ctx, req.ContentID, stage, status, req.Comment, req.Reviewer)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"decision": d}
	if s.sync != nil {
		w, changed, err := s.sync.SyncItem(ctx, req.ContentID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			s.log.WithError(err).WithField("item_id", req.ContentID).Warn("on-demand sync failed")
		default:
			resp["item"] = w
			resp["applied"] = changed
		}
	}
	c.JSON(http.StatusCreated, resp)
}
