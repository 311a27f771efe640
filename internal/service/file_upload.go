package service

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/noah-isme/gema-lms-api/pkg/storage"
)

// UploadedFile is a file received from a client, not yet stored.
type UploadedFile struct {
	Name     string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// FilesFromMultipart adapts multipart headers into uploaded files.
func FilesFromMultipart(headers []*multipart.FileHeader) []UploadedFile {
	files := make([]UploadedFile, 0, len(headers))
	for _, header := range headers {
		if header == nil {
			continue
		}
		header := header
		files = append(files, UploadedFile{
			Name:     header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Size:     header.Size,
			Open: func() (io.ReadCloser, error) {
				return header.Open()
			},
		})
	}
	return files
}

// BytesFile builds an uploaded file from memory.
func BytesFile(name, mimeType string, data []byte) UploadedFile {
	return UploadedFile{
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func (f UploadedFile) candidate() CandidateFile {
	return CandidateFile{Name: f.Name, MimeType: f.MimeType, Size: f.Size}
}

// nonEmptyFiles drops zero-byte parts, which browsers send for empty file inputs.
func nonEmptyFiles(files []UploadedFile) []UploadedFile {
	kept := make([]UploadedFile, 0, len(files))
	for _, file := range files {
		if file.Size <= 0 || file.Open == nil {
			continue
		}
		kept = append(kept, file)
	}
	return kept
}

func candidates(files []UploadedFile) []CandidateFile {
	out := make([]CandidateFile, 0, len(files))
	for _, file := range files {
		out = append(out, file.candidate())
	}
	return out
}

// detectMIME fills in a missing or generic declared type by sniffing content.
func detectMIME(file UploadedFile) string {
	declared := strings.TrimSpace(file.MimeType)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}

	handle, err := file.Open()
	if err != nil {
		return "application/octet-stream"
	}
	defer handle.Close()

	detected, err := mimetype.DetectReader(handle)
	if err != nil {
		return "application/octet-stream"
	}
	return detected.String()
}

// uploadFile streams one file into the gateway.
func uploadFile(ctx context.Context, gateway storage.Gateway, file UploadedFile, prefix string, metadata map[string]string) (storage.Object, string, error) {
	mimeType := detectMIME(file)

	handle, err := file.Open()
	if err != nil {
		return storage.Object{}, mimeType, storage.NewError(storage.ErrUploadFailed, gateway.Name(), "", err)
	}
	defer handle.Close()

	var object storage.Object
	err = observeStorage(gateway.Name(), "upload", func() error {
		var uploadErr error
		object, uploadErr = gateway.Upload(ctx, storage.UploadInput{
			Reader:   handle,
			Name:     file.Name,
			MimeType: mimeType,
			Size:     file.Size,
			Prefix:   prefix,
			Metadata: metadata,
		})
		return uploadErr
	})
	if err != nil {
		return storage.Object{}, mimeType, err
	}
	if object.Size == 0 {
		object.Size = file.Size
	}
	return object, mimeType, nil
}
