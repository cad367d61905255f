package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apperrors "github.com/warrenlibrary/library-backend/internal/errors"
	"github.com/warrenlibrary/library-backend/internal/models"
	"github.com/warrenlibrary/library-backend/internal/service"
)

type BookHandler struct {
	borrowingService *service.BorrowingService
}

func NewBookHandler(borrowingService *service.BorrowingService) *BookHandler {
	return &BookHandler{
		borrowingService: borrowingService,
	}
}

type BookRequest struct {
	Title    string  `json:"title" binding:"required"`
	Author   string  `json:"author" binding:"required"`
	ISBN     string  `json:"isbn" binding:"required"`
	Category *string `json:"category"`
}

func (r BookRequest) input() service.BookInput {
	return service.BookInput{
		Title:    r.Title,
		Author:   r.Author,
		ISBN:     r.ISBN,
		Category: r.Category,
	}
}

// ListBooks returns the catalogue with derived availability.
// GET /api/books?title=&author=&category=
func (h *BookHandler) ListBooks(c *gin.Context) {
	books, err := h.borrowingService.ListBooks(c.Request.Context(), models.BookFilter{
		Title:    c.Query("title"),
		Author:   c.Query("author"),
		Category: c.Query("category"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, books)
}

// AddBook creates a catalogue entry.
// POST /api/books
func (h *BookHandler) AddBook(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req BookRequest
	if !bindJSON(c, &req) {
		return
	}

	book, err := h.borrowingService.AddBook(c.Request.Context(), actor, req.input())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Book added successfully",
		"book":    book,
	})
}

// UpdateBook replaces title, author, isbn and category of a book.
// PUT /api/books/:id
func (h *BookHandler) UpdateBook(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	id, ok := pathID(c, "id", "book")
	if !ok {
		return
	}

	var req BookRequest
	if !bindJSON(c, &req) {
		return
	}

	book, err := h.borrowingService.UpdateBook(c.Request.Context(), actor, id, req.input())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Book updated successfully",
		"book":    book,
	})
}

// DeleteBook removes a book and its borrow history.
// DELETE /api/books/:id
func (h *BookHandler) DeleteBook(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	id, ok := pathID(c, "id", "book")
	if !ok {
		return
	}

	if err := h.borrowingService.DeleteBook(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Book deleted successfully"})
}

// pathID parses a numeric path parameter, answering 400 when it is not one.
func pathID(c *gin.Context, param, what string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil {
		respondError(c, apperrors.Validation("invalid "+what+" id"))
		return 0, false
	}
	return id, true
}
