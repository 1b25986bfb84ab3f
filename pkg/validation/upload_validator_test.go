package validation

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "go-tonesense/internal/errors"
)

func TestUploadValidator_Boundaries(t *testing.T) {
	validator := NewUploadValidator()

	tests := []struct {
		name     string
		mimeType string
		size     int64
		wantErr  bool
	}{
		{"exact limit png", "image/png", MaxUploadBytes, false},
		{"one byte over", "image/png", MaxUploadBytes + 1, true},
		{"two megabyte jpeg", "image/jpeg", 2 * 1024 * 1024, false},
		{"non-image type", "application/pdf", 10, true},
		{"empty type", "", 10, true},
		{"text type", "text/plain", 1, true},
		{"empty image", "image/png", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := UploadedFile{
				Name:      "photo",
				MIMEType:  tt.mimeType,
				SizeBytes: tt.size,
				Data:      make([]byte, tt.size),
			}
			sel, err := validator.Validate(file)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, sel)
				assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.size, sel.File.SizeBytes)
			assert.True(t, strings.HasPrefix(sel.Preview, "data:"+tt.mimeType+";base64,"))
		})
	}
}

func TestUploadValidator_SizeMismatch(t *testing.T) {
	validator := NewUploadValidator()
	_, err := validator.Validate(UploadedFile{MIMEType: "image/png", SizeBytes: 5, Data: []byte("abc")})
	require.Error(t, err)
}

func TestUploadValidator_ValidateReaderSniffs(t *testing.T) {
	validator := NewUploadValidator()

	sel, err := validator.ValidateReader("face.png", "", bytes.NewReader(testPNG(t)))
	require.NoError(t, err)
	assert.Equal(t, "image/png", sel.File.MIMEType)
	assert.Equal(t, "face.png", sel.File.Name)

	_, err = validator.ValidateReader("notes.txt", "", strings.NewReader("just some text"))
	require.Error(t, err)
}

func TestUploadValidator_ValidateReaderDeclaredParams(t *testing.T) {
	validator := NewUploadValidator()

	sel, err := validator.ValidateReader("face.png", "IMAGE/PNG; q=1", bytes.NewReader(testPNG(t)))
	require.NoError(t, err)
	assert.Equal(t, "image/png", sel.File.MIMEType)
}

func TestUploadValidator_ValidateFile(t *testing.T) {
	dir := t.TempDir()
	validator := NewUploadValidatorWithLimit(1024)

	small := filepath.Join(dir, "small.png")
	require.NoError(t, os.WriteFile(small, testPNG(t), 0o600))
	sel, err := validator.ValidateFile(small)
	require.NoError(t, err)
	assert.Equal(t, "small.png", sel.File.Name)

	big := filepath.Join(dir, "big.png")
	require.NoError(t, os.WriteFile(big, make([]byte, 2048), 0o600))
	_, err = validator.ValidateFile(big)
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Details, "exceeds")

	_, err = validator.ValidateFile(filepath.Join(dir, "missing.png"))
	require.Error(t, err)

	_, err = validator.ValidateFile(dir)
	require.Error(t, err)
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, G: 150, B: 120, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
