package domain

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// MaxPhotoBytes is the largest photo accepted at intake and as resolution proof.
const MaxPhotoBytes = 5 * 1024 * 1024

// AttachmentKind discriminates AttachmentRef.
type AttachmentKind string

const (
	AttachmentKindURL    AttachmentKind = "url"
	AttachmentKindBase64 AttachmentKind = "base64"
)

// AttachmentRef points at a binary either by URL or by inline base64 content.
type AttachmentRef struct {
	Kind        AttachmentKind `json:"kind"`
	Value       string         `json:"value"`
	ContentType string         `json:"contentType,omitempty"`
	FileName    string         `json:"fileName,omitempty"`
}

// URLRef builds a URL reference.
func URLRef(u string) *AttachmentRef {
	return &AttachmentRef{Kind: AttachmentKindURL, Value: u}
}

// Base64Ref builds an inline reference.
func Base64Ref(encoded, contentType string) *AttachmentRef {
	return &AttachmentRef{Kind: AttachmentKindBase64, Value: encoded, ContentType: contentType}
}

// Decode returns the inline bytes of a base64 reference.
func (r AttachmentRef) Decode() ([]byte, error) {
	if r.Kind != AttachmentKindBase64 {
		return nil, fmt.Errorf("attachment %q is not inline", r.Kind)
	}
	data, err := base64.StdEncoding.DecodeString(r.Value)
	if err != nil {
		return nil, fmt.Errorf("decode attachment: %w", err)
	}
	return data, nil
}

// File is an in-memory binary with its name and media type.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the payload length in bytes.
func (f File) Size() int { return len(f.Data) }

// Extension returns the file extension including the dot, derived from the
// name or, failing that, from the content type.
func (f File) Extension() string {
	if ext := filepath.Ext(f.Name); ext != "" {
		return strings.ToLower(ext)
	}
	if exts, err := mime.ExtensionsByType(f.ContentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// Descriptor identifies a file stored against a remote record.
type Descriptor struct {
	FileName          string `json:"fileName"`
	ServerRelativeURL string `json:"serverRelativeUrl,omitempty"`
}

// ValidatePhoto enforces the image-only and size guards shared by intake
// and resolution proof uploads.
func ValidatePhoto(f File) error {
	if len(f.Data) == 0 {
		return apperrors.NewValidationError("foto kosong", nil)
	}
	if len(f.Data) > MaxPhotoBytes {
		return apperrors.NewValidationError("ukuran foto maksimal 5 MB", map[string]any{
			"size":  len(f.Data),
			"limit": MaxPhotoBytes,
		})
	}
	if !strings.HasPrefix(PhotoContentType(f), "image/") {
		return apperrors.NewValidationError("file harus berupa gambar", map[string]any{
			"name":        f.Name,
			"contentType": f.ContentType,
		})
	}
	return nil
}

// PhotoContentType resolves the media type of f, preferring what the bytes
// say over what the client declared.
func PhotoContentType(f File) string {
	sniffed := http.DetectContentType(f.Data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	if !strings.HasPrefix(sniffed, "application/octet-stream") && !strings.HasPrefix(sniffed, "text/plain") {
		return sniffed
	}
	declared := strings.ToLower(strings.TrimSpace(f.ContentType))
	if declared == "" || declared == "application/octet-stream" {
		declared = mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name)))
	}
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	return declared
}
