package util

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
)

// Error codes shared by both binaries. The last six form the ticket
// lifecycle taxonomy.
const (
	CodeNotFound       = "NOT_FOUND"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeConflict       = "CONFLICT"
	CodeInternal       = "INTERNAL_ERROR"
	CodeUpstream       = "UPSTREAM_REJECTED"
	CodeValidation     = "VALIDATION_FAILED"
	CodeNetwork        = "NETWORK_ERROR"
	CodeUploadConflict = "UPLOAD_CONFLICT"
	CodeUploadRejected = "UPLOAD_REJECTED"
	CodeRecordCreation = "RECORD_CREATION_FAILED"
	CodeFinalization   = "FINALIZATION_FAILED"
)

// maxBodyPreview bounds the upstream response body kept in error details.
const maxBodyPreview = 512

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewNetworkError wraps a transport failure (dial, TLS, timeout, broken body).
func NewNetworkError(op string, err error) error {
	return &DomainError{
		Code:       CodeNetwork,
		Message:    op + " failed: network error",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"op": op},
		Err:        err,
	}
}

// NewUpstreamError describes a non-2xx answer from a remote store. The
// status and a truncated body go into Details so operators can escalate.
func NewUpstreamError(code, op string, status int, body []byte) error {
	return &DomainError{
		Code:       code,
		Message:    fmt.Sprintf("%s failed with status %d", op, status),
		HTTPStatus: http.StatusBadGateway,
		Details: map[string]any{
			"op":     op,
			"status": status,
			"body":   Truncate(string(body), maxBodyPreview),
		},
	}
}

// NewUploadConflict reports a write-write collision that outlived the retry policy.
func NewUploadConflict(op string, status int, body []byte) error {
	err := NewUpstreamError(CodeUploadConflict, op, status, body).(*DomainError)
	err.HTTPStatus = http.StatusConflict
	return err
}

// NewUploadRejected reports a non-conflict non-2xx attachment answer.
func NewUploadRejected(op string, status int, body []byte) error {
	return NewUpstreamError(CodeUploadRejected, op, status, body)
}

// NewRecordCreationFailure wraps a failed remote list create.
func NewRecordCreationFailure(err error) error {
	return &DomainError{
		Code:       CodeRecordCreation,
		Message:    "remote ticket record could not be created",
		HTTPStatus: http.StatusBadGateway,
		Details:    detailsOf(err),
		Err:        err,
	}
}

// NewFinalizationFailure wraps a failed confirm/decline. remoteID is the
// record that already exists in the secondary store, if any.
func NewFinalizationFailure(remoteID string, err error) error {
	details := detailsOf(err)
	if remoteID != "" {
		details["sharePointItemId"] = remoteID
	}
	return &DomainError{
		Code:       CodeFinalization,
		Message:    "ticket could not be finalized",
		HTTPStatus: http.StatusBadGateway,
		Details:    details,
		Err:        err,
	}
}

func detailsOf(err error) map[string]any {
	details := map[string]any{}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		for k, v := range domainErr.Details {
			details[k] = v
		}
		details["cause"] = domainErr.Code
	}
	return details
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// DisplayMessage maps an error to the plain text shown to end users and operators.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	domainErr := ToDomainError(err)
	switch domainErr.Code {
	case CodeValidation, CodeConflict, CodeNotFound, CodeUpstream:
		return domainErr.Message
	case CodeNetwork:
		return "Koneksi ke server gagal, silakan coba lagi."
	case CodeUploadConflict:
		return "Lampiran bentrok dengan penulisan lain dan tidak tersimpan."
	case CodeUploadRejected:
		return "Lampiran ditolak oleh server."
	case CodeRecordCreation:
		return fmt.Sprintf("Gagal membuat data tiket di SharePoint (%s).", upstreamSummary(domainErr))
	case CodeFinalization:
		return fmt.Sprintf("Data SharePoint sudah dibuat tetapi status tiket gagal diperbarui (%s).", upstreamSummary(domainErr))
	case CodeUnauthorized, CodeForbidden:
		return domainErr.Message
	default:
		return "Terjadi kesalahan pada server."
	}
}

func upstreamSummary(e *DomainError) string {
	if status, ok := e.Details["status"]; ok {
		return fmt.Sprintf("HTTP %v", status)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// Truncate shortens s to at most max characters, marking the cut. It never
// splits a multi-byte character.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

func MapError(err error) error {
	return ToDomainError(err)
}
