package testutil

import (
	"testing"
	"time"

	"github.com/warrenlibrary/library-backend/internal/models"
	"github.com/warrenlibrary/library-backend/internal/utils"
	"gorm.io/gorm"
)

// TestSecret signs every token issued in tests.
const TestSecret = "test-secret-key-for-library-backend"

// CreateTestUser inserts a user with a bcrypt-hashed password.
func CreateTestUser(t *testing.T, db *gorm.DB, username, email, password string, role models.Role) *models.User {
	t.Helper()

	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// DefaultStudent creates the regular student account most tests act as.
func DefaultStudent(t *testing.T, db *gorm.DB) *models.User {
	return CreateTestUser(t, db, "student", "student@example.com", "Student123", models.RoleStudent)
}

// DefaultAdmin creates an admin account.
func DefaultAdmin(t *testing.T, db *gorm.DB) *models.User {
	return CreateTestUser(t, db, "admin", "admin@example.com", "Admin123", models.RoleAdmin)
}

// CreateTestBook inserts a catalogue entry. An empty category is stored as
// NULL.
func CreateTestBook(t *testing.T, db *gorm.DB, title, author, isbn, category string) *models.Book {
	t.Helper()

	book := &models.Book{
		Title:  title,
		Author: author,
		ISBN:   isbn,
	}
	if category != "" {
		book.Category = &category
	}
	if err := db.Create(book).Error; err != nil {
		t.Fatalf("Failed to create test book: %v", err)
	}
	return book
}

// CreateOpenBorrow inserts a borrow that has not been returned, starting on
// borrowDate.
func CreateOpenBorrow(t *testing.T, db *gorm.DB, userID, bookID uint, borrowDate time.Time) *models.Borrow {
	t.Helper()

	day := models.CalendarDay(borrowDate)
	borrow := &models.Borrow{
		UserID:     userID,
		BookID:     bookID,
		BorrowDate: day,
		DueDate:    models.DueDateFor(day),
	}
	if err := db.Create(borrow).Error; err != nil {
		t.Fatalf("Failed to create test borrow: %v", err)
	}
	return borrow
}

// TokenFor issues a valid session token for user.
func TokenFor(t *testing.T, user *models.User) string {
	t.Helper()

	token, err := utils.GenerateToken(user, TestSecret, utils.TokenTTL)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return token
}

// ActorOf returns the actor a token for user would carry.
func ActorOf(user *models.User) models.Actor {
	return models.Actor{UserID: user.ID, Role: user.Role}
}
