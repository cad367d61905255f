package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/warrenlibrary/library-backend/internal/errors"
	"github.com/warrenlibrary/library-backend/internal/models"
	"github.com/warrenlibrary/library-backend/internal/repository"
	"github.com/warrenlibrary/library-backend/internal/service"
	"github.com/warrenlibrary/library-backend/internal/testutil"
)

func assertUnavailable(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.True(t, apperrors.CodeOf(err).Retryable())
}

func TestStoreTimeout_SurfacesAsUnavailable(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	defer testDB.Teardown(t)

	student := testutil.DefaultStudent(t, testDB.DB)
	book := testutil.CreateTestBook(t, testDB.DB, "Dune", "Frank Herbert", "isbn-dune", "")

	engine := service.NewBorrowingService(
		repository.NewBookRepository(testDB.DB),
		repository.NewBorrowRepository(testDB.DB),
		nil, nil, time.Nanosecond,
	)
	auth := service.NewAuthService(repository.NewUserRepository(testDB.DB), testutil.TestSecret, time.Nanosecond)
	ctx := context.Background()

	_, err := engine.Borrow(ctx, testutil.ActorOf(student), int64(book.ID))
	assertUnavailable(t, err)

	_, _, err = auth.Login(ctx, "student@example.com", "Student123")
	assertUnavailable(t, err)

	_, err = engine.ListBooks(ctx, models.BookFilter{})
	assertUnavailable(t, err)

	var open int64
	require.NoError(t, testDB.DB.Model(&models.Borrow{}).Where("book_id = ?", book.ID).Count(&open).Error)
	assert.Zero(t, open)
}

func TestCancelledContext_SurfacesAsUnavailable(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	defer testDB.Teardown(t)

	services := testutil.NewTestServices(t, testDB.DB)
	student := testutil.DefaultStudent(t, testDB.DB)
	book := testutil.CreateTestBook(t, testDB.DB, "Emma", "Jane Austen", "isbn-emma", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := services.Borrowing.Borrow(ctx, testutil.ActorOf(student), int64(book.ID))
	assertUnavailable(t, err)

	_, _, err = services.Auth.Login(ctx, "student@example.com", "Student123")
	assertUnavailable(t, err)

	// The same engine still works once the caller's context is live.
	borrow, err := services.Borrowing.Borrow(context.Background(), testutil.ActorOf(student), int64(book.ID))
	require.NoError(t, err)
	assert.Equal(t, book.ID, borrow.BookID)
}
