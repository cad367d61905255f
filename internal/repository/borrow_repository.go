package repository

import (
	"context"
	"errors"
	"time"

	"github.com/warrenlibrary/library-backend/internal/database"
	"github.com/warrenlibrary/library-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BorrowRepository struct {
	db *gorm.DB
}

func NewBorrowRepository(db *gorm.DB) *BorrowRepository {
	return &BorrowRepository{db: db}
}

// Open records a new borrow if, and only if, the book exists and has no open
// borrow. The book row is locked for the duration of the check and insert so
// concurrent borrowers of the same book serialize; the partial unique index
// on borrows(book_id) catches anything that slips through.
func (r *BorrowRepository) Open(ctx context.Context, userID, bookID uint, borrowDate, dueDate time.Time) (*models.Borrow, error) {
	var borrow *models.Borrow

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book models.Book
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&book, bookID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		var open int64
		if err := tx.Model(&models.Borrow{}).
			Where("book_id = ? AND return_date IS NULL", bookID).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return ErrBookUnavailable
		}

		borrow = &models.Borrow{
			UserID:     userID,
			BookID:     bookID,
			BorrowDate: borrowDate,
			DueDate:    dueDate,
		}
		if err := tx.Create(borrow).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return ErrBookUnavailable
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return borrow, nil
}

// GetOpenByID returns nil, nil when no open borrow has that id.
func (r *BorrowRepository) GetOpenByID(ctx context.Context, id uint) (*models.Borrow, error) {
	var borrow models.Borrow
	err := r.db.WithContext(ctx).
		Where("id = ? AND return_date IS NULL", id).
		First(&borrow).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &borrow, nil
}

// MarkReturned closes an open borrow. ErrBorrowNotFound means it was already
// closed, possibly by a concurrent request.
func (r *BorrowRepository) MarkReturned(ctx context.Context, id uint, returnDate time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.Borrow{}).
		Where("id = ? AND return_date IS NULL", id).
		Update("return_date", returnDate)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBorrowNotFound
	}
	return nil
}

// ListByUser returns the user's borrows, most recent first.
func (r *BorrowRepository) ListByUser(ctx context.Context, userID uint) ([]models.BorrowWithBook, error) {
	borrows := make([]models.BorrowWithBook, 0)
	err := r.db.WithContext(ctx).
		Table("borrows").
		Select("borrows.*, books.title, books.author").
		Joins("JOIN books ON borrows.book_id = books.id").
		Where("borrows.user_id = ?", userID).
		Order("borrows.borrow_date DESC, borrows.id DESC").
		Scan(&borrows).Error
	if err != nil {
		return nil, err
	}
	return borrows, nil
}

// CountOpenForBook returns how many open borrows reference the book. Anything
// above one means the single-open-borrow invariant was violated.
func (r *BorrowRepository) CountOpenForBook(ctx context.Context, bookID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Borrow{}).
		Where("book_id = ? AND return_date IS NULL", bookID).
		Count(&count).Error
	return count, err
}
