package fraud

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nmelo/sentinel/internal/auth"
	"github.com/nmelo/sentinel/internal/rules"
	"github.com/nmelo/sentinel/internal/wallet"
)

type historyEntry struct {
	Amount      float64   `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
	RecipientID string    `json:"recipientId,omitempty"`
	SenderID    string    `json:"senderId,omitempty"`
	Type        string    `json:"type,omitempty"`
	Status      string    `json:"status,omitempty"`
	RiskScore   int       `json:"riskScore,omitempty"`
}

type checkRequest struct {
	TransactionID    string         `json:"transactionId"`
	Type             string         `json:"type" binding:"required"`
	Amount           float64        `json:"amount" binding:"required,gt=0"`
	RecipientID      string         `json:"recipientId"`
	IPAddress        string         `json:"ipAddress"`
	Country          string         `json:"country"`
	Timestamp        *time.Time     `json:"timestamp"`
	AccountCreatedAt *time.Time     `json:"accountCreatedAt"`
	History          []historyEntry `json:"history"`
}

// RegisterRoutes registers caller-facing decision endpoints. The group
// must already carry authentication middleware.
func (s *Service) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/transactions/check", s.handleCheck)
	r.GET("/fraud/logs/:id", s.handleGetLog)
	r.GET("/fraud/logs", s.handleListLogs)
}

// RegisterAdminRoutes registers review-queue and resolution endpoints.
// The group must already carry admin middleware.
func (s *Service) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/review-queue", s.handleReviewQueue)
	r.GET("/decisions/recent", s.handleRecent)
	r.GET("/fraud/:id/hold", s.handleHold)
	r.POST("/fraud/:id/resolve", s.handleResolve)
}

func (s *Service) handleCheck(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := auth.UserID(c)
	txCtx := &rules.Context{
		UserID:      userID,
		Type:        req.Type,
		Amount:      req.Amount,
		RecipientID: req.RecipientID,
		IPAddress:   req.IPAddress,
		Country:     req.Country,
		Timestamp:   time.Now(),
	}
	if req.Timestamp != nil {
		txCtx.Timestamp = *req.Timestamp
	}
	if req.AccountCreatedAt != nil {
		txCtx.AccountCreatedAt = *req.AccountCreatedAt
	}
	for _, h := range req.History {
		txCtx.History = append(txCtx.History, rules.HistoryEntry{
			Amount:      h.Amount,
			Timestamp:   h.Timestamp,
			RecipientID: h.RecipientID,
			SenderID:    h.SenderID,
			Type:        h.Type,
			Status:      h.Status,
			RiskScore:   h.RiskScore,
		})
	}
	if bal, err := s.wallet.Balance(c.Request.Context(), userID); err == nil {
		txCtx.AvailableBalance = bal.Available
	}

	log, err := s.CheckTransaction(c.Request.Context(), txCtx, req.TransactionID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrInvalidContext):
			status = http.StatusBadRequest
		case errors.Is(err, wallet.ErrInsufficientFunds):
			status = http.StatusPaymentRequired
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, log)
}

func (s *Service) handleGetLog(c *gin.Context) {
	log, err := s.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if log.UserID != auth.UserID(c) && !auth.IsAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your fraud log"})
		return
	}
	c.JSON(http.StatusOK, log)
}

func (s *Service) handleListLogs(c *gin.Context) {
	userID := auth.UserID(c)
	if requested := c.Query("userId"); requested != "" && requested != userID {
		if !auth.IsAdmin(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "cannot list another user's logs"})
			return
		}
		userID = requested
	}
	logs, err := s.ListByUser(c.Request.Context(), userID, intQuery(c, "limit"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

func (s *Service) handleReviewQueue(c *gin.Context) {
	logs, err := s.PendingReview(c.Request.Context(), intQuery(c, "limit"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

func (s *Service) handleRecent(c *gin.Context) {
	logs, err := s.Recent(c.Request.Context(), intQuery(c, "limit"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

func (s *Service) handleHold(c *gin.Context) {
	hold, err := s.HoldForLog(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := statusFor(err)
		if errors.Is(err, wallet.ErrHoldNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, hold)
}

type resolveRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approve confirm_fraud"`
}

func (s *Service) handleResolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log, err := s.Resolve(c.Request.Context(), c.Param("id"), req.Decision, auth.UserID(c))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, log)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrLogNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidContext):
		return http.StatusBadRequest
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
