package ticketstore

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// TicketFromRow converts a wire row into a domain ticket, normalising its
// photo. An unreadable photo leaves Photo nil; the ticket is still returned
// together with the photo error.
func TicketFromRow(row dto.TicketRow) (domain.Ticket, error) {
	photo, err := NormalizeAttachment(row.Photo)
	if err != nil {
		photo = nil
		err = fmt.Errorf("ticket %s photo: %w", row.ID, err)
	}
	return domain.Ticket{
		ID:               row.ID,
		Number:           row.TicketNumber,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
		ReporterName:     row.Name,
		Division:         row.Division,
		Priority:         row.Priority,
		Description:      row.Description,
		Status:           row.Status,
		Photo:            photo,
		Assignee:         row.Assignee,
		Notes:            row.Notes,
		Operator:         row.Operator,
		SharePointItemID: row.SharePointItemID,
	}, err
}

// RowFromTicket converts a domain ticket into its wire row.
func RowFromTicket(t domain.Ticket) dto.TicketRow {
	row := dto.TicketRow{
		ID:               t.ID,
		TicketNumber:     t.Number,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		Name:             t.ReporterName,
		Division:         t.Division,
		Priority:         t.Priority,
		Description:      t.Description,
		Status:           t.Status,
		Assignee:         t.Assignee,
		Notes:            t.Notes,
		Operator:         t.Operator,
		SharePointItemID: t.SharePointItemID,
	}
	if t.Photo != nil {
		if t.Photo.Kind == domain.AttachmentKindURL {
			row.Photo, _ = json.Marshal(t.Photo.Value)
		} else {
			row.Photo, _ = json.Marshal(fmt.Sprintf("data:%s;base64,%s", t.Photo.ContentType, t.Photo.Value))
		}
	}
	return row
}

// NormalizeAttachment turns the shapes a photo may take on the wire into
// an AttachmentRef: a URL string, a data URL, a bare base64 string, or an
// object carrying either a url or inline content. Empty input yields nil.
func NormalizeAttachment(raw json.RawMessage) (*domain.AttachmentRef, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return normalizeText(text, "")
	}

	var obj struct {
		URL          string `json:"url"`
		Href         string `json:"href"`
		Value        string `json:"value"`
		Kind         string `json:"kind"`
		Base64       string `json:"base64"`
		ContentBytes string `json:"contentBytes"`
		Data         string `json:"data"`
		ContentType  string `json:"contentType"`
		MimeType     string `json:"mimeType"`
		Name         string `json:"name"`
		FileName     string `json:"fileName"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("unrecognised attachment shape: %w", err)
	}
	contentType := firstNonEmpty(obj.ContentType, obj.MimeType)
	name := firstNonEmpty(obj.FileName, obj.Name)

	var ref *domain.AttachmentRef
	var err error
	switch {
	case obj.Kind == string(domain.AttachmentKindURL) && obj.Value != "":
		ref = domain.URLRef(obj.Value)
	case obj.Kind == string(domain.AttachmentKindBase64) && obj.Value != "":
		ref, err = normalizeText(obj.Value, contentType)
	case firstNonEmpty(obj.URL, obj.Href) != "":
		ref = domain.URLRef(firstNonEmpty(obj.URL, obj.Href))
	case firstNonEmpty(obj.Base64, obj.ContentBytes, obj.Data) != "":
		ref, err = normalizeText(firstNonEmpty(obj.Base64, obj.ContentBytes, obj.Data), contentType)
	default:
		return nil, nil
	}
	if err != nil || ref == nil {
		return ref, err
	}
	if ref.ContentType == "" {
		ref.ContentType = contentType
	}
	ref.FileName = name
	return ref, nil
}

func normalizeText(text, contentType string) (*domain.AttachmentRef, error) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return nil, nil
	case strings.HasPrefix(text, "data:"):
		header, payload, ok := strings.Cut(strings.TrimPrefix(text, "data:"), ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("unsupported data url")
		}
		return domain.Base64Ref(payload, strings.TrimSuffix(header, ";base64")), nil
	case strings.HasPrefix(text, "http://"), strings.HasPrefix(text, "https://"), strings.HasPrefix(text, "/"):
		return domain.URLRef(text), nil
	default:
		if _, err := base64.StdEncoding.DecodeString(text); err == nil {
			return domain.Base64Ref(text, contentType), nil
		}
		if isRelativePath(text) {
			return domain.URLRef(text), nil
		}
		return nil, fmt.Errorf("attachment is neither a url nor base64")
	}
}

// isRelativePath accepts store paths written without a leading slash, such
// as "uploads/foto.jpg".
func isRelativePath(text string) bool {
	if strings.ContainsAny(text, " \t\r\n") || !strings.ContainsAny(text, "/.") {
		return false
	}
	u, err := url.Parse(text)
	return err == nil && !u.IsAbs() && u.Host == "" && u.Path != ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
