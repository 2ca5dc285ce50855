package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	RunID   ID
	ModelID ID
)

// NewRunID creates an identifier for one pipeline run
func NewRunID() RunID { return RunID(NewID()) }

// NewModelID creates an identifier for one fitted model
func NewModelID() ModelID { return ModelID(NewID()) }

func (id RunID) String() string   { return ID(id).String() }
func (id ModelID) String() string { return ID(id).String() }

// ParseModelID validates a user supplied model identifier
func ParseModelID(s string) (ModelID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("model id cannot be empty")
	}
	return ModelID(s), nil
}
