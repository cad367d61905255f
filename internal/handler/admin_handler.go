package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apperrors "github.com/warrenlibrary/library-backend/internal/errors"
	"github.com/warrenlibrary/library-backend/internal/service"
	"github.com/warrenlibrary/library-backend/pkg/logger"
	"go.uber.org/zap"
)

type AdminHandler struct {
	borrowingService *service.BorrowingService
}

func NewAdminHandler(borrowingService *service.BorrowingService) *AdminHandler {
	return &AdminHandler{
		borrowingService: borrowingService,
	}
}

// Activity returns the newest circulation journal entries.
// GET /api/admin/activity?limit=50
func (h *AdminHandler) Activity(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(c, apperrors.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}

	logger.Log.Info("Admin fetching circulation activity",
		zap.Uint("admin_id", actor.UserID),
		zap.Int("limit", limit),
	)

	entries, err := h.borrowingService.RecentActivity(actor, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}
