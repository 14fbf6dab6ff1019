package types

import (
	"database/sql/driver"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// ID is a numeric entity identifier allocated from a per-entity sequence.
// Zero is never allocated.
type ID int64

// ParseID parses a decimal string into an ID
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ID %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid ID %q: must be positive", s)
	}
	return ID(n), nil
}

// String returns the decimal representation
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// IsZero checks if the ID is unset
func (id ID) IsZero() bool {
	return id == 0
}

// Value implements driver.Valuer for database serialization
func (id ID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}
	return int64(id), nil
}

// Scan implements sql.Scanner for database deserialization
func (id *ID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*id = 0
	case int64:
		*id = ID(v)
	case int32:
		*id = ID(v)
	default:
		return fmt.Errorf("cannot scan %T into ID", value)
	}
	return nil
}

// NewEventID generates a random identifier for an emitted event
func NewEventID() string {
	return uuid.New().String()
}
