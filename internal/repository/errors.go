package repository

import "errors"

var (
	ErrBookNotFound    = errors.New("book not found")
	ErrBookUnavailable = errors.New("book is currently borrowed")
	ErrDuplicateISBN   = errors.New("isbn already exists")
	ErrBorrowNotFound  = errors.New("open borrow not found")
)
