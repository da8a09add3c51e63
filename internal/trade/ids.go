package trade

import "github.com/google/uuid"

// NewOrderID returns a random order identifier.
func NewOrderID() string { return uuid.NewString() }

func NewRevisionID() string { return uuid.NewString() }

func NewQuestionID() string { return uuid.NewString() }

func NewDiscountID() string { return uuid.NewString() }

// IsValidID reports whether s parses as a UUID.
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
