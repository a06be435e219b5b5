// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"fmt"
)

const MaxDisplayNameLen = 80

var (
	ErrSubjectInvalid     = errors.New("subject id must be positive")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

type SubjectID int64

// Identity is what a verified credential resolves to.
type Identity struct {
	SubjectID   SubjectID `json:"subject_id"`
	DisplayName string    `json:"display_name"`
}

// NewIdentity falls back to "user-<id>" when name is empty.
func NewIdentity(id SubjectID, name string) (Identity, error) {
	if id <= 0 {
		return Identity{}, ErrSubjectInvalid
	}
	if name == "" {
		name = fmt.Sprintf("user-%d", id)
	}
	if len(name) > MaxDisplayNameLen {
		return Identity{}, ErrDisplayNameTooLong
	}
	return Identity{SubjectID: id, DisplayName: name}, nil
}
