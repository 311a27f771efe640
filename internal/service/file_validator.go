package service

import (
	"strings"

	"github.com/noah-isme/gema-lms-api/internal/models"
)

// CandidateFile is what the validator needs to know about an upload.
type CandidateFile struct {
	Name     string
	MimeType string
	Size     int64
}

// FilePolicy bounds what may be uploaded. Zero values disable a check.
type FilePolicy struct {
	AllowedExtensions []string
	AllowedMIMETypes  []string
	MaxSizeBytes      int64
	MaxFiles          int
}

// PolicyForAssignment derives the upload policy from the assignment settings.
func PolicyForAssignment(assignment models.Assignment) FilePolicy {
	return FilePolicy{
		AllowedExtensions: assignment.AllowedExtensions,
		MaxSizeBytes:      assignment.MaxFileSizeBytes,
		MaxFiles:          assignment.MaxFiles,
	}
}

// Check validates a single file. A file passes the type check when either its
// extension or its declared MIME type is allowed.
func (p FilePolicy) Check(file CandidateFile) error {
	if !p.typeAllowed(file) {
		return &FileRejectionError{Reason: RejectInvalidType, FileName: file.Name}
	}

	if p.MaxSizeBytes > 0 && file.Size > p.MaxSizeBytes {
		return &FileRejectionError{
			Reason:   RejectTooLarge,
			FileName: file.Name,
			Limit:    p.MaxSizeBytes,
			Actual:   file.Size,
		}
	}

	return nil
}

// CheckBatch validates the count first, then each file in order, and
// returns the first violation.
func (p FilePolicy) CheckBatch(files []CandidateFile) error {
	if p.MaxFiles > 0 && len(files) > p.MaxFiles {
		return &FileRejectionError{
			Reason: RejectTooManyFiles,
			Limit:  int64(p.MaxFiles),
			Actual: int64(len(files)),
		}
	}

	for _, file := range files {
		if err := p.Check(file); err != nil {
			return err
		}
	}
	return nil
}

func (p FilePolicy) typeAllowed(file CandidateFile) bool {
	if len(p.AllowedExtensions) == 0 && len(p.AllowedMIMETypes) == 0 {
		return true
	}

	if ext := fileExtension(file.Name); ext != "" {
		for _, allowed := range p.AllowedExtensions {
			if strings.EqualFold(strings.TrimPrefix(strings.TrimSpace(allowed), "."), ext) {
				return true
			}
		}
	}

	mime := strings.ToLower(strings.TrimSpace(file.MimeType))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	if mime != "" {
		for _, allowed := range p.AllowedMIMETypes {
			if strings.EqualFold(strings.TrimSpace(allowed), mime) {
				return true
			}
		}
	}

	return false
}

// fileExtension returns the lower-cased text after the last dot.
func fileExtension(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}
