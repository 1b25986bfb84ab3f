package validation

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	apperrors "go-tonesense/internal/errors"
)

// MaxUploadBytes is the largest accepted upload, 10 MiB inclusive
const MaxUploadBytes int64 = 10 * 1024 * 1024

// UploadedFile is a user-selected image that passed validation
type UploadedFile struct {
	Name      string
	MIMEType  string
	SizeBytes int64
	Data      []byte
}

// Selection is the pre-submission state of the upload view: the accepted
// file and a data URL preview for display.
type Selection struct {
	File    UploadedFile
	Preview string
}

// UploadValidator enforces the type and size constraints on uploads
type UploadValidator struct {
	maxBytes int64
}

// NewUploadValidator creates a validator with the default 10 MiB limit
func NewUploadValidator() *UploadValidator {
	return &UploadValidator{maxBytes: MaxUploadBytes}
}

// NewUploadValidatorWithLimit creates a validator with a custom size limit
func NewUploadValidatorWithLimit(maxBytes int64) *UploadValidator {
	return &UploadValidator{maxBytes: maxBytes}
}

// Validate checks a candidate file. The MIME type is the one declared by
// the source (browser File.type, multipart header, or sniffing). On
// rejection nothing is retained.
func (v *UploadValidator) Validate(file UploadedFile) (*Selection, error) {
	if err := v.check(file.MIMEType, file.SizeBytes); err != nil {
		return nil, err
	}
	if int64(len(file.Data)) != file.SizeBytes {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("declared size %d does not match %d bytes read", file.SizeBytes, len(file.Data)), nil)
	}

	return &Selection{
		File:    file,
		Preview: DataURL(file.MIMEType, file.Data),
	}, nil
}

// ValidateReader reads at most one byte past the limit from r, sniffs its
// MIME type when declared is empty, and validates the result.
func (v *UploadValidator) ValidateReader(name, declared string, r io.Reader) (*Selection, error) {
	data, err := io.ReadAll(io.LimitReader(r, v.maxBytes+1))
	if err != nil {
		return nil, apperrors.NewValidationError("failed to read file contents", err)
	}

	mimeType := normalizeMIME(declared)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = normalizeMIME(mimetype.Detect(data).String())
	}

	return v.Validate(UploadedFile{
		Name:      name,
		MIMEType:  mimeType,
		SizeBytes: int64(len(data)),
		Data:      data,
	})
}

// ValidateFile validates a file on disk. Size is checked from the file
// metadata first so oversized files are never read.
func (v *UploadValidator) ValidateFile(path string) (*Selection, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.NewValidationError("cannot access file", err)
	}
	if info.IsDir() {
		return nil, apperrors.NewValidationError("path is a directory", nil)
	}
	if info.Size() > v.maxBytes {
		return nil, v.tooLarge(info.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewValidationError("cannot open file", err)
	}
	defer f.Close()

	return v.ValidateReader(filepath.Base(path), "", f)
}

func (v *UploadValidator) check(mimeType string, size int64) error {
	if !strings.HasPrefix(mimeType, "image/") {
		return apperrors.NewValidationError("Please select a valid image file (JPEG, PNG, etc.)", nil)
	}
	if size > v.maxBytes {
		return v.tooLarge(size)
	}
	if size == 0 {
		return apperrors.NewValidationError("image file is empty", nil)
	}
	return nil
}

func (v *UploadValidator) tooLarge(size int64) error {
	err := apperrors.NewValidationError(fmt.Sprintf("Image must be less than %d MB.", v.maxBytes/(1024*1024)), nil)
	err.Details = fmt.Sprintf("%d bytes exceeds the %d byte limit", size, v.maxBytes)
	return err
}

// normalizeMIME drops parameters such as charset and lowercases the type
func normalizeMIME(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

// DataURL encodes data as a base64 data URL of the given MIME type
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
