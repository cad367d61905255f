package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/warrenlibrary/library-backend/internal/broker"
	"github.com/warrenlibrary/library-backend/internal/journal"
	"github.com/warrenlibrary/library-backend/internal/repository"
	"github.com/warrenlibrary/library-backend/internal/service"
	"gorm.io/gorm"
)

// TestServices is the service layer wired the way the server wires it, with
// an in-process broker and a journal in a temporary directory.
type TestServices struct {
	Auth      *service.AuthService
	Borrowing *service.BorrowingService
	Journal   *journal.Journal
	Broker    *broker.MemoryBroker
}

// NewTestServices builds the services over db. Journal and broker are closed
// when the test finishes.
func NewTestServices(t *testing.T, db *gorm.DB) *TestServices {
	t.Helper()

	j, err := journal.Open(filepath.Join(t.TempDir(), "circulation.log"))
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	b := broker.NewMemoryBroker()

	t.Cleanup(func() {
		j.Close()
		b.Close()
	})

	userRepo := repository.NewUserRepository(db)
	bookRepo := repository.NewBookRepository(db)
	borrowRepo := repository.NewBorrowRepository(db)

	return &TestServices{
		Auth:      service.NewAuthService(userRepo, TestSecret, 5*time.Second),
		Borrowing: service.NewBorrowingService(bookRepo, borrowRepo, j, b, 5*time.Second),
		Journal:   j,
		Broker:    b,
	}
}
