package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/warrenlibrary/library-backend/internal/broker"
	apperrors "github.com/warrenlibrary/library-backend/internal/errors"
	"github.com/warrenlibrary/library-backend/internal/journal"
	"github.com/warrenlibrary/library-backend/internal/models"
	"github.com/warrenlibrary/library-backend/internal/repository"
	"github.com/warrenlibrary/library-backend/pkg/logger"
	"go.uber.org/zap"
)

const (
	DefaultActivityLimit = 50
	MaxActivityLimit     = 500
)

var (
	errBookNotFound   = apperrors.NotFound("book not found")
	errBorrowNotFound = apperrors.NotFound("borrow record not found or already returned")
	errBookBorrowed   = apperrors.Conflict("book is not available (currently borrowed)")
	errDuplicateISBN  = apperrors.Conflict("a book with this isbn already exists")
)

// BookInput carries the admin-editable fields of a book.
type BookInput struct {
	Title    string
	Author   string
	ISBN     string
	Category *string
}

// BorrowingService owns the catalogue and the borrow/return lifecycle. Book
// availability is never stored; every read derives it from open borrows.
type BorrowingService struct {
	bookRepo     *repository.BookRepository
	borrowRepo   *repository.BorrowRepository
	journal      *journal.Journal
	broker       broker.Broker
	storeTimeout time.Duration
	now          func() time.Time
}

// NewBorrowingService wires the engine. activity and events may be nil, in
// which case circulation events are not recorded or published.
func NewBorrowingService(
	bookRepo *repository.BookRepository,
	borrowRepo *repository.BorrowRepository,
	activity *journal.Journal,
	events broker.Broker,
	storeTimeout time.Duration,
) *BorrowingService {
	return &BorrowingService{
		bookRepo:     bookRepo,
		borrowRepo:   borrowRepo,
		journal:      activity,
		broker:       events,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

// ListBooks returns the catalogue, each book annotated with its availability.
func (s *BorrowingService) ListBooks(ctx context.Context, filter models.BookFilter) ([]models.BookWithAvailability, error) {
	ctx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()

	books, err := s.bookRepo.List(ctx, filter)
	if err != nil {
		logger.Log.Error("Failed to fetch books", zap.Error(err))
		return nil, apperrors.Unavailable("failed to fetch books", err)
	}
	return books, nil
}

// Borrow lends a book to a student for the fixed loan period. The
// availability check and the insert are one atomic step in the store.
func (s *BorrowingService) Borrow(ctx context.Context, actor models.Actor, bookID int64) (*models.Borrow, error) {
	if err := requireRole(actor, models.RoleStudent); err != nil {
		return nil, err
	}
	if bookID <= 0 {
		return nil, apperrors.Validation("book_id must be a positive integer")
	}

	ctx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()

	borrowDate := models.CalendarDay(s.now())
	borrow, err := s.borrowRepo.Open(ctx, actor.UserID, uint(bookID), borrowDate, models.DueDateFor(borrowDate))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrBookNotFound):
			return nil, errBookNotFound
		case errors.Is(err, repository.ErrBookUnavailable):
			logger.Log.Warn("Borrow rejected: book already out",
				zap.Uint("user_id", actor.UserID),
				zap.Int64("book_id", bookID),
			)
			return nil, errBookBorrowed
		default:
			logger.Log.Error("Failed to borrow book",
				zap.Uint("user_id", actor.UserID),
				zap.Int64("book_id", bookID),
				zap.Error(err),
			)
			return nil, apperrors.Unavailable("failed to borrow book", err)
		}
	}

	logger.Log.Info("Book borrowed",
		zap.Uint("borrow_id", borrow.ID),
		zap.Uint("user_id", actor.UserID),
		zap.Uint("book_id", borrow.BookID),
		zap.Time("due_date", borrow.DueDate),
	)

	s.record(ctx, actor, journal.ActionBorrow, broker.EventBorrowed, borrow.BookID, borrow.ID, false)
	return borrow, nil
}

// Return closes an open borrow. Students may only return their own borrows;
// admins may return anyone's.
func (s *BorrowingService) Return(ctx context.Context, actor models.Actor, borrowID int64) error {
	if borrowID <= 0 {
		return errBorrowNotFound
	}

	ctx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()

	borrow, err := s.borrowRepo.GetOpenByID(ctx, uint(borrowID))
	if err != nil {
		logger.Log.Error("Failed to look up borrow",
			zap.Int64("borrow_id", borrowID),
			zap.Error(err),
		)
		return apperrors.Unavailable("failed to return book", err)
	}
	if borrow == nil {
		return errBorrowNotFound
	}

	if !actor.IsAdmin() && actor.UserID != borrow.UserID {
		logger.Log.Warn("Return rejected: not the borrower",
			zap.Uint("user_id", actor.UserID),
			zap.Uint("borrow_id", borrow.ID),
		)
		return apperrors.Forbidden("you can only return your own borrows")
	}

	if err := s.borrowRepo.MarkReturned(ctx, borrow.ID, models.CalendarDay(s.now())); err != nil {
		if errors.Is(err, repository.ErrBorrowNotFound) {
			return errBorrowNotFound
		}
		logger.Log.Error("Failed to mark borrow returned",
			zap.Uint("borrow_id", borrow.ID),
			zap.Error(err),
		)
		return apperrors.Unavailable("failed to return book", err)
	}

	logger.Log.Info("Book returned",
		zap.Uint("borrow_id", borrow.ID),
		zap.Uint("book_id", borrow.BookID),
		zap.Uint("returned_by", actor.UserID),
	)

	s.record(ctx, actor, journal.ActionReturn, broker.EventReturned, borrow.BookID, borrow.ID, true)
	return nil
}

// ListUserBorrows returns the actor's own borrows, most recent first.
func (s *BorrowingService) ListUserBorrows(ctx context.Context, actor models.Actor) ([]models.BorrowWithBook, error) {
	ctx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()

	borrows, err := s.borrowRepo.ListByUser(ctx, actor.UserID)
	if err != nil {
		logger.Log.Error("Failed to fetch borrows",
			zap.Uint("user_id", actor.UserID),
			zap.Error(err),
		)
		return nil, apperrors.Unavailable("failed to fetch borrows", err)
	}
	return borrows, nil
}

func (s *BorrowingService) AddBook(ctx context.Context, actor models.Actor, input BookInput) (*models.BookWithAvailability, error) {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	book, err := input.toBook()
	if err != nil {
		return nil, err
	}

	ctx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()

	if err := s.bookRepo.Create(ctx, book); err != nil {
		return nil, s.bookWriteError("add", err)
	}

	logger.Log.Info("Book added",
		zap.Uint("book_id", book.ID),
		zap.String("isbn", book.ISBN),
		zap.Uint("admin_id", actor.UserID),
	)

	s.record(ctx, actor, journal.ActionBookAdd, broker.EventBookAdded, book.ID, 0, true)
	return &models.BookWithAvailability{Book: *book, Available: true}, nil
}

func (s *BorrowingService) UpdateBook(ctx context.Context, actor models.Actor, id int64, input BookInput) (*models.BookWithAvailability, error) {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, errBookNotFound
	}
	book, err := input.toBook()
	if err != nil {
		return nil, err
	}
	book.ID = uint(id)

	ctx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()

	if err := s.bookRepo.Update(ctx, book); err != nil {
		return nil, s.bookWriteError("update", err)
	}

	updated, err := s.bookRepo.GetByID(ctx, book.ID)
	if err != nil {
		return nil, apperrors.Unavailable("failed to update book", err)
	}
	if updated == nil {
		// Deleted between the update and the read.
		return nil, errBookNotFound
	}

	logger.Log.Info("Book updated",
		zap.Uint("book_id", book.ID),
		zap.Uint("admin_id", actor.UserID),
	)

	s.record(ctx, actor, journal.ActionBookUpdate, broker.EventBookUpdated, book.ID, 0, updated.Available)
	return updated, nil
}

// DeleteBook removes a book together with its whole borrow history.
func (s *BorrowingService) DeleteBook(ctx context.Context, actor models.Actor, id int64) error {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return err
	}
	if id <= 0 {
		return errBookNotFound
	}

	ctx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()

	if err := s.bookRepo.Delete(ctx, uint(id)); err != nil {
		return s.bookWriteError("delete", err)
	}

	logger.Log.Info("Book deleted",
		zap.Int64("book_id", id),
		zap.Uint("admin_id", actor.UserID),
	)

	s.record(ctx, actor, journal.ActionBookDelete, broker.EventBookDeleted, uint(id), 0, false)
	return nil
}

// RecentActivity returns the newest journal entries, newest first. A
// non-positive limit means DefaultActivityLimit.
func (s *BorrowingService) RecentActivity(actor models.Actor, limit int) ([]journal.Entry, error) {
	if err := requireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	if limit > MaxActivityLimit {
		limit = MaxActivityLimit
	}
	if s.journal == nil {
		return []journal.Entry{}, nil
	}

	entries, err := s.journal.Tail(limit)
	if err != nil {
		logger.Log.Error("Failed to read journal", zap.Error(err))
		return nil, apperrors.Unavailable("failed to read activity", err)
	}
	return entries, nil
}

func (s *BorrowingService) bookWriteError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrBookNotFound):
		return errBookNotFound
	case errors.Is(err, repository.ErrDuplicateISBN):
		return errDuplicateISBN
	default:
		logger.Log.Error("Failed to "+op+" book", zap.Error(err))
		return apperrors.Unavailable("failed to "+op+" book", err)
	}
}

// record appends the mutation to the journal and publishes it to live
// subscribers. Neither can fail the operation that already committed.
func (s *BorrowingService) record(ctx context.Context, actor models.Actor, action journal.Action, eventType broker.EventType, bookID, borrowID uint, available bool) {
	at := s.now().UTC()

	if s.journal != nil {
		err := s.journal.Append(journal.Entry{
			Action:   action,
			ActorID:  actor.UserID,
			BookID:   bookID,
			BorrowID: borrowID,
			At:       at,
		})
		if err != nil {
			logger.Log.Error("Failed to append journal entry",
				zap.String("action", string(action)),
				zap.Uint("book_id", bookID),
				zap.Error(err),
			)
		}
	}

	if s.broker != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()

		err := s.broker.Publish(pubCtx, broker.Event{
			Type:      eventType,
			BookID:    bookID,
			BorrowID:  borrowID,
			Available: available,
			At:        at,
		})
		if err != nil {
			logger.Log.Warn("Failed to publish circulation event",
				zap.String("type", string(eventType)),
				zap.Uint("book_id", bookID),
				zap.Error(err),
			)
		}
	}
}

func (in BookInput) toBook() (*models.Book, error) {
	book := &models.Book{
		Title:  strings.TrimSpace(in.Title),
		Author: strings.TrimSpace(in.Author),
		ISBN:   strings.TrimSpace(in.ISBN),
	}
	if book.Title == "" || book.Author == "" || book.ISBN == "" {
		return nil, apperrors.Validation("title, author and isbn are required")
	}
	if in.Category != nil {
		if category := strings.TrimSpace(*in.Category); category != "" {
			book.Category = &category
		}
	}
	return book, nil
}
