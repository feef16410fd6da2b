package validate

import (
	"errors"
	"fmt"
	"strings"
)

// File validation errors
var (
	ErrInvalidMIMEType = errors.New("invalid MIME type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrFileTooSmall    = errors.New("file too small")
)

// Common MIME type categories
const (
	MIMETextPlain = "text/plain"
	MIMETextCSV   = "text/csv"
	MIMEAppPDF    = "application/pdf"
	MIMEAppJSON   = "application/json"
	MIMEImageJPEG = "image/jpeg"
	MIMEImagePNG  = "image/png"
)

// AllowedDocumentTypes defines MIME types accepted for document uploads.
// Scanned pages come in as JPEG or PNG.
var AllowedDocumentTypes = []string{
	MIMETextPlain,
	MIMETextCSV,
	MIMEAppPDF,
	MIMEAppJSON,
	MIMEImageJPEG,
	MIMEImagePNG,
}

// FileConstraints defines validation constraints for file uploads.
type FileConstraints struct {
	AllowedTypes []string // Allowed MIME types
	MaxSizeBytes int64    // Maximum file size in bytes
	MinSizeBytes int64    // Minimum file size in bytes (0 = no minimum)
}

// MIMEType validates a MIME type against allowed types.
// Returns the normalized MIME type (lowercased) and an error if invalid.
func MIMEType(mimeType string, allowedTypes []string) (string, error) {
	// Normalize: trim whitespace and lowercase
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))

	if mimeType == "" {
		return "", ErrEmpty
	}

	// Check if in allowed list
	for _, allowed := range allowedTypes {
		if mimeType == strings.ToLower(allowed) {
			return mimeType, nil
		}
	}

	return "", fmt.Errorf("%w: %q not in allowed types", ErrInvalidMIMEType, mimeType)
}

// FileSize validates a file size against constraints.
func FileSize(sizeBytes int64, constraints FileConstraints) error {
	if sizeBytes <= 0 {
		return errors.New("file size must be positive")
	}

	if constraints.MinSizeBytes > 0 && sizeBytes < constraints.MinSizeBytes {
		return fmt.Errorf("%w: got %d bytes, minimum is %d", ErrFileTooSmall, sizeBytes, constraints.MinSizeBytes)
	}

	if constraints.MaxSizeBytes > 0 && sizeBytes > constraints.MaxSizeBytes {
		return fmt.Errorf("%w: got %d bytes, maximum is %d", ErrFileTooLarge, sizeBytes, constraints.MaxSizeBytes)
	}

	return nil
}

// File validates both MIME type and file size.
func File(mimeType string, sizeBytes int64, constraints FileConstraints) (string, error) {
	// Validate MIME type
	validatedType, err := MIMEType(mimeType, constraints.AllowedTypes)
	if err != nil {
		return "", err
	}

	// Validate size
	if err := FileSize(sizeBytes, constraints); err != nil {
		return "", err
	}

	return validatedType, nil
}

// DocumentUploadConstraints returns the constraints for a document upload
// given the configured size cap in megabytes.
func DocumentUploadConstraints(maxSizeMB int) FileConstraints {
	return FileConstraints{
		AllowedTypes: AllowedDocumentTypes,
		MaxSizeBytes: int64(maxSizeMB) * 1024 * 1024,
		MinSizeBytes: 0,
	}
}

// DocumentFile validates a document upload against the default 15MB cap.
func DocumentFile(mimeType string, sizeBytes int64) (string, error) {
	return File(mimeType, sizeBytes, DocumentUploadConstraints(15))
}
