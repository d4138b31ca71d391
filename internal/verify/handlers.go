package verify

import (
	"encoding/csv"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nmelo/sentinel/internal/auth"
	"github.com/nmelo/sentinel/internal/fraud"
)

// RegisterRoutes registers the user trust endpoint. The group must
// already carry authentication middleware.
func (s *Service) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:id/trust", s.handleUserTrust)
}

// RegisterAdminRoutes registers labeling, accuracy, and export
// endpoints. The group must already carry admin middleware.
func (s *Service) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/fraud/:id/ground-truth", s.handleSetGroundTruth)
	r.GET("/metrics/accuracy", s.handleMetrics)
	r.GET("/export", s.handleExport)
}

func (s *Service) handleUserTrust(c *gin.Context) {
	userID := c.Param("id")
	if userID != auth.UserID(c) && !auth.IsAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your trust report"})
		return
	}
	report, err := s.UserTrust(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

type groundTruthRequest struct {
	Truth string `json:"truth" binding:"required,oneof=fraud legitimate"`
}

func (s *Service) handleSetGroundTruth(c *gin.Context) {
	var req groundTruthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	log, err := s.SetGroundTruth(c.Request.Context(), c.Param("id"), fraud.GroundTruth(req.Truth), auth.UserID(c))
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, fraud.ErrLogNotFound):
			status = http.StatusNotFound
		case errors.Is(err, fraud.ErrGroundTruthSet):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, log)
}

func (s *Service) handleMetrics(c *gin.Context) {
	report, err := s.Metrics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Service) handleExport(c *gin.Context) {
	records, err := s.Export(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if c.Query("format") == "csv" {
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="verified_decisions.csv"`)
		w := csv.NewWriter(c.Writer)
		_ = w.Write(CSVHeader)
		for _, rec := range records {
			_ = w.Write(rec.CSVRow())
		}
		w.Flush()
		return
	}

	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}
