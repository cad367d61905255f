package models

import "time"

// LoanPeriodDays is the fixed borrowing period.
const LoanPeriodDays = 15

// DateLayout is the calendar-day format used for borrow dates on the wire.
const DateLayout = "2006-01-02"

type Borrow struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"not null;index" json:"user_id"`
	BookID     uint       `gorm:"not null;index" json:"book_id"`
	BorrowDate time.Time  `gorm:"not null;index" json:"borrow_date"`
	DueDate    time.Time  `gorm:"not null" json:"due_date"`
	ReturnDate *time.Time `json:"return_date"`

	// Foreign Key Relationships
	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Book *Book `gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE" json:"-"`
}

// IsOpen reports whether the book has not been returned yet.
func (b *Borrow) IsOpen() bool {
	return b.ReturnDate == nil
}

// BorrowWithBook is a borrow joined with the title and author of its book.
type BorrowWithBook struct {
	Borrow
	Title  string `json:"title"`
	Author string `json:"author"`
}

// CalendarDay truncates t to midnight UTC.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DueDateFor returns the due date of a borrow started on day.
func DueDateFor(day time.Time) time.Time {
	return CalendarDay(day).AddDate(0, 0, LoanPeriodDays)
}
