package appeals

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nmelo/sentinel/internal/auth"
	"github.com/nmelo/sentinel/internal/fraud"
)

// RegisterRoutes registers user-facing appeal endpoints. The group must
// already carry authentication middleware.
func (s *Service) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/fraud/logs/:id/appeal", s.handleSubmit)
	r.GET("/appeals/:id", s.handleGet)
	r.GET("/appeals", s.handleList)
}

// RegisterAdminRoutes registers the appeal review queue. The group must
// already carry admin middleware.
func (s *Service) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/appeals", s.handlePendingQueue)
	r.POST("/appeals/:id/resolve", s.handleResolve)
}

type submitRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (s *Service) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	appeal, err := s.Submit(c.Request.Context(), c.Param("id"), auth.UserID(c), req.Reason)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, appeal)
}

func (s *Service) handleGet(c *gin.Context) {
	appeal, err := s.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if appeal.UserID != auth.UserID(c) && !auth.IsAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your appeal"})
		return
	}
	c.JSON(http.StatusOK, appeal)
}

func (s *Service) handleList(c *gin.Context) {
	appeals, err := s.ListByUser(c.Request.Context(), auth.UserID(c), intQuery(c, "limit"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"appeals": appeals, "count": len(appeals)})
}

func (s *Service) handlePendingQueue(c *gin.Context) {
	appeals, err := s.ListPending(c.Request.Context(), intQuery(c, "limit"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"appeals": appeals, "count": len(appeals)})
}

type resolveRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approve reject"`
	Notes    string `json:"notes"`
}

func (s *Service) handleResolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	appeal, err := s.Resolve(c.Request.Context(), c.Param("id"), req.Decision, auth.UserID(c), req.Notes)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, appeal)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrAppealNotFound), errors.Is(err, fraud.ErrLogNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrResolved):
		return http.StatusConflict
	case errors.Is(err, ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, ErrNotEligible), errors.Is(err, ErrEmptyReason):
		return http.StatusBadRequest
	case errors.Is(err, fraud.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func intQuery(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 0 {
		return 0
	}
	return v
}
