package models

import "time"

type Book struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	Author    string    `gorm:"type:varchar(255);not null" json:"author"`
	ISBN      string    `gorm:"column:isbn;type:varchar(32);uniqueIndex;not null" json:"isbn"`
	Category  *string   `gorm:"type:varchar(100)" json:"category"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// BookWithAvailability is a catalogue row annotated with the derived
// availability flag. Available is never stored; it is computed from the
// borrows table on every read.
type BookWithAvailability struct {
	Book
	Available bool `json:"available"`
}

// BookFilter narrows ListBooks. Empty fields match everything.
type BookFilter struct {
	Title    string
	Author   string
	Category string
}
