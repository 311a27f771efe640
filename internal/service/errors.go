package service

import (
	"errors"
	"fmt"
)

var (
	// ErrAssignmentNotFound indicates the assignment could not be found.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrSubmissionNotFound indicates a submission could not be found.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrResourceNotFound indicates the resource could not be found.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrLessonNotFound indicates the lesson could not be found.
	ErrLessonNotFound = errors.New("lesson not found")
	// ErrContentNotFound indicates the subtree root could not be found.
	ErrContentNotFound = errors.New("content not found")
	// ErrAttachmentNotFound indicates the attachment could not be found.
	ErrAttachmentNotFound = errors.New("attachment not found")
	// ErrVersionNotFound indicates the requested resource version does not exist.
	ErrVersionNotFound = errors.New("resource version not found")

	// ErrUnauthorized indicates the actor may not perform the operation.
	ErrUnauthorized = errors.New("not allowed to perform this action")
	// ErrNotEnrolled indicates the student has no active enrollment in the course.
	ErrNotEnrolled = errors.New("student is not enrolled in this course")

	// ErrValidationFailed is matched by every FileRejectionError.
	ErrValidationFailed = errors.New("file validation failed")
	// ErrDeadlinePassed indicates the assignment no longer accepts submissions.
	ErrDeadlinePassed = errors.New("assignment deadline has passed")
	// ErrAlreadyGraded indicates the submission is graded and therefore immutable.
	ErrAlreadyGraded = errors.New("submission has already been graded")
	// ErrGradeOutOfRange indicates the grade is outside 0..max.
	ErrGradeOutOfRange = errors.New("grade is out of range")
	// ErrConfirmationRequired is matched by ConfirmationRequiredError.
	ErrConfirmationRequired = errors.New("deletion requires confirmation")
	// ErrSubmissionConflict indicates a concurrent write could not be reconciled.
	ErrSubmissionConflict = errors.New("submission was modified concurrently")

	// ErrFileRequired indicates a file resource was created without a file.
	ErrFileRequired = errors.New("file is required")
	// ErrNotFileResource indicates a version was added to a non-file resource.
	ErrNotFileResource = errors.New("resource does not hold a file")
	// ErrNotDownloadable indicates the resource has downloads disabled or is not yet visible.
	ErrNotDownloadable = errors.New("resource is not available for download")
	// ErrInvalidResource indicates resource metadata inconsistent with its content type.
	ErrInvalidResource = errors.New("invalid resource")
	// ErrUnsupportedContentKind indicates an unknown subtree root kind.
	ErrUnsupportedContentKind = errors.New("unsupported content kind")
	// ErrInvalidActivityFilter indicates an audit query with an inverted time window.
	ErrInvalidActivityFilter = errors.New("activity filter 'from' must not be after 'to'")
	// ErrUnknownActivity indicates an audit entry for an action that is not tracked.
	ErrUnknownActivity = errors.New("unknown activity action")
	// ErrDirectUploadUnsupported indicates the resource store cannot sign upload URLs.
	ErrDirectUploadUnsupported = errors.New("direct upload is not supported by the resource store")
	// ErrInvalidUploadKey indicates an upload key outside the lesson's prefix.
	ErrInvalidUploadKey = errors.New("upload key does not belong to this lesson")
	// ErrUploadNotFound indicates nothing was uploaded under the given key.
	ErrUploadNotFound = errors.New("uploaded file not found")
	// ErrUploadKeyInUse indicates the uploaded object already backs a resource version.
	ErrUploadKeyInUse = errors.New("uploaded file is already attached to a resource")
)

// RejectionReason classifies why a candidate file was refused.
type RejectionReason string

const (
	RejectInvalidType  RejectionReason = "INVALID_TYPE"
	RejectTooLarge     RejectionReason = "TOO_LARGE"
	RejectTooManyFiles RejectionReason = "TOO_MANY_FILES"
)

// FileRejectionError describes the first policy violation found in a batch.
type FileRejectionError struct {
	Reason   RejectionReason
	FileName string
	Limit    int64
	Actual   int64
}

func (e *FileRejectionError) Error() string {
	switch e.Reason {
	case RejectTooLarge:
		return fmt.Sprintf("%s is %d bytes, %d bytes over the %d byte limit", e.FileName, e.Actual, e.Actual-e.Limit, e.Limit)
	case RejectTooManyFiles:
		return fmt.Sprintf("%d files submitted, at most %d allowed", e.Actual, e.Limit)
	default:
		return fmt.Sprintf("%s has a file type that is not allowed", e.FileName)
	}
}

// Is lets callers match with errors.Is(err, ErrValidationFailed).
func (e *FileRejectionError) Is(target error) bool {
	return target == ErrValidationFailed
}

// ConfirmationRequiredError is returned when a destructive delete needs force.
type ConfirmationRequiredError struct {
	Count       int
	Lessons     int
	Resources   int
	Submissions int
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("deleting this content removes %d dependent items (%d lessons, %d resources, %d submissions); retry with force",
		e.Count, e.Lessons, e.Resources, e.Submissions)
}

// Is lets callers match with errors.Is(err, ErrConfirmationRequired).
func (e *ConfirmationRequiredError) Is(target error) bool {
	return target == ErrConfirmationRequired
}
