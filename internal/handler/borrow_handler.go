package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/warrenlibrary/library-backend/internal/models"
	"github.com/warrenlibrary/library-backend/internal/service"
)

type BorrowHandler struct {
	borrowingService *service.BorrowingService
}

func NewBorrowHandler(borrowingService *service.BorrowingService) *BorrowHandler {
	return &BorrowHandler{
		borrowingService: borrowingService,
	}
}

type BorrowRequest struct {
	BookID int64 `json:"book_id" binding:"required"`
}

// BorrowResponse is a borrow with its dates as calendar days.
type BorrowResponse struct {
	ID         uint    `json:"id"`
	UserID     uint    `json:"user_id"`
	BookID     uint    `json:"book_id"`
	Title      string  `json:"title,omitempty"`
	Author     string  `json:"author,omitempty"`
	BorrowDate string  `json:"borrow_date"`
	DueDate    string  `json:"due_date"`
	ReturnDate *string `json:"return_date"`
}

func newBorrowResponse(b models.Borrow) BorrowResponse {
	resp := BorrowResponse{
		ID:         b.ID,
		UserID:     b.UserID,
		BookID:     b.BookID,
		BorrowDate: formatDay(b.BorrowDate),
		DueDate:    formatDay(b.DueDate),
	}
	if b.ReturnDate != nil {
		day := formatDay(*b.ReturnDate)
		resp.ReturnDate = &day
	}
	return resp
}

func formatDay(t time.Time) string {
	return t.UTC().Format(models.DateLayout)
}

// Borrow lends a book to the calling student.
// POST /api/borrow
func (h *BorrowHandler) Borrow(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req BorrowRequest
	if !bindJSON(c, &req) {
		return
	}

	borrow, err := h.borrowingService.Borrow(c.Request.Context(), actor, req.BookID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Book borrowed successfully",
		"borrow":  newBorrowResponse(*borrow),
	})
}

// Return closes an open borrow.
// POST /api/return/:borrow_id
func (h *BorrowHandler) Return(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	id, ok := pathID(c, "borrow_id", "borrow")
	if !ok {
		return
	}

	if err := h.borrowingService.Return(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Book returned successfully"})
}

// ListBorrows returns the caller's borrow history, most recent first.
// GET /api/borrows
func (h *BorrowHandler) ListBorrows(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	borrows, err := h.borrowingService.ListUserBorrows(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]BorrowResponse, 0, len(borrows))
	for _, b := range borrows {
		r := newBorrowResponse(b.Borrow)
		r.Title = b.Title
		r.Author = b.Author
		resp = append(resp, r)
	}
	c.JSON(http.StatusOK, resp)
}
