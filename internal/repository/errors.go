package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrDuplicateSubmission is returned when (assignment, student) already has a row.
	ErrDuplicateSubmission = errors.New("submission already exists for assignment and student")
	// ErrSubmissionLocked is returned when a conditional update finds the row already graded.
	ErrSubmissionLocked = errors.New("submission is no longer open for changes")
	// ErrResourceNotFile is returned when a version is appended to a non-file resource.
	ErrResourceNotFile = errors.New("resource does not hold a file")
)

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
