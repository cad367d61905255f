package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/warrenlibrary/library-backend/internal/database"
	"github.com/warrenlibrary/library-backend/internal/models"
	"gorm.io/gorm"
)

// availabilitySelect derives availability from borrow history.
const availabilitySelect = `books.*, NOT EXISTS (
	SELECT 1 FROM borrows
	WHERE borrows.book_id = books.id AND borrows.return_date IS NULL
) AS available`

type BookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) *BookRepository {
	return &BookRepository{db: db}
}

// List returns the catalogue filtered by case-insensitive substring matches.
func (r *BookRepository) List(ctx context.Context, filter models.BookFilter) ([]models.BookWithAvailability, error) {
	query := r.db.WithContext(ctx).Table("books").Select(availabilitySelect)

	for column, value := range map[string]string{
		"title":    filter.Title,
		"author":   filter.Author,
		"category": filter.Category,
	} {
		if value = strings.TrimSpace(value); value != "" {
			query = query.Where("LOWER(books."+column+") LIKE ?", "%"+strings.ToLower(value)+"%")
		}
	}

	books := make([]models.BookWithAvailability, 0)
	if err := query.Order("books.id ASC").Scan(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

// GetByID returns nil, nil when the book does not exist.
func (r *BookRepository) GetByID(ctx context.Context, id uint) (*models.BookWithAvailability, error) {
	var books []models.BookWithAvailability
	err := r.db.WithContext(ctx).
		Table("books").
		Select(availabilitySelect).
		Where("books.id = ?", id).
		Limit(1).
		Scan(&books).Error
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, nil
	}
	return &books[0], nil
}

// Create inserts a book, rejecting duplicate ISBNs.
func (r *BookRepository) Create(ctx context.Context, book *models.Book) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if taken, err := isbnTaken(tx, book.ISBN, 0); err != nil {
			return err
		} else if taken {
			return ErrDuplicateISBN
		}

		if err := tx.Create(book).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDuplicateISBN
			}
			return err
		}
		return nil
	})
}

// Update overwrites title, author, isbn and category of an existing book.
func (r *BookRepository) Update(ctx context.Context, book *models.Book) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Book
		if err := tx.First(&existing, book.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		if taken, err := isbnTaken(tx, book.ISBN, book.ID); err != nil {
			return err
		} else if taken {
			return ErrDuplicateISBN
		}

		err := tx.Model(&existing).
			Select("Title", "Author", "ISBN", "Category").
			Updates(book).Error
		if err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDuplicateISBN
			}
			return err
		}
		return nil
	})
}

// Delete removes the book and, first, every borrow that references it.
func (r *BookRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book models.Book
		if err := tx.First(&book, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		if err := tx.Where("book_id = ?", id).Delete(&models.Borrow{}).Error; err != nil {
			return err
		}
		return tx.Delete(&book).Error
	})
}

func isbnTaken(tx *gorm.DB, isbn string, exceptID uint) (bool, error) {
	var count int64
	err := tx.Model(&models.Book{}).
		Where("isbn = ? AND id <> ?", isbn, exceptID).
		Count(&count).Error
	return count > 0, err
}
