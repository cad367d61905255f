package handler_test

import (
	"testing"
	"time"

	"github.com/warrenlibrary/library-backend/internal/models"
)

func mustDay(t *testing.T, value string) time.Time {
	t.Helper()
	day, err := time.Parse(models.DateLayout, value)
	if err != nil {
		t.Fatalf("bad date %q: %v", value, err)
	}
	return day
}

func daysBetween(t *testing.T, from, to string) int {
	return int(mustDay(t, to).Sub(mustDay(t, from)).Hours() / 24)
}
