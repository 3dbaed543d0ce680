package graph

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// Strategy is one transport able to store a file against a list item.
type Strategy interface {
	Name() string
	Upload(ctx context.Context, itemID string, file domain.File) (*domain.Descriptor, error)
}

// GraphAttachments uploads through the Graph item attachments endpoint
// with the content inlined as base64.
type GraphAttachments struct {
	client *Client
}

// NewGraphAttachments returns the primary attachment transport.
func NewGraphAttachments(client *Client) *GraphAttachments {
	return &GraphAttachments{client: client}
}

func (s *GraphAttachments) Name() string { return "graph" }

func (s *GraphAttachments) Upload(ctx context.Context, itemID string, file domain.File) (*domain.Descriptor, error) {
	const op = "upload attachment (graph)"
	body, err := json.Marshal(map[string]string{
		"name":         file.Name,
		"contentBytes": base64.StdEncoding.EncodeToString(file.Data),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: encode: %w", op, err)
	}
	resp, err := s.client.do(ctx, request{
		op:          op,
		method:      http.MethodPost,
		url:         s.client.itemsURL() + "/" + url.PathEscape(itemID) + "/attachments",
		contentType: "application/json",
		body:        body,
	})
	if err != nil {
		return nil, err
	}
	if err := classifyUpload(op, resp); err != nil {
		return nil, err
	}

	var stored struct {
		Name string `json:"name"`
		URL  string `json:"webUrl"`
	}
	_ = json.Unmarshal(resp.body, &stored)
	desc := &domain.Descriptor{FileName: stored.Name, ServerRelativeURL: stored.URL}
	if desc.FileName == "" {
		desc.FileName = file.Name
	}
	return desc, nil
}

// RESTAttachments uploads the raw bytes through the SharePoint
// AttachmentFiles/add endpoint.
type RESTAttachments struct {
	client *Client
}

// NewRESTAttachments returns the legacy attachment transport.
func NewRESTAttachments(client *Client) *RESTAttachments {
	return &RESTAttachments{client: client}
}

func (s *RESTAttachments) Name() string { return "sharepoint-rest" }

func (s *RESTAttachments) Upload(ctx context.Context, itemID string, file domain.File) (*domain.Descriptor, error) {
	const op = "upload attachment (sharepoint)"
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	resp, err := s.client.do(ctx, request{
		op:          op,
		method:      http.MethodPost,
		url:         s.addURL(itemID, file.Name),
		contentType: contentType,
		accept:      "application/json;odata=verbose",
		body:        file.Data,
	})
	if err != nil {
		return nil, err
	}
	if err := classifyUpload(op, resp); err != nil {
		return nil, err
	}

	var stored struct {
		D struct {
			FileName          string `json:"FileName"`
			ServerRelativeURL string `json:"ServerRelativeUrl"`
		} `json:"d"`
	}
	_ = json.Unmarshal(resp.body, &stored)
	desc := &domain.Descriptor{FileName: stored.D.FileName, ServerRelativeURL: stored.D.ServerRelativeURL}
	if desc.FileName == "" {
		desc.FileName = file.Name
	}
	return desc, nil
}

func (s *RESTAttachments) addURL(itemID, fileName string) string {
	return fmt.Sprintf("%s/_api/web/lists/getbytitle('%s')/items(%s)/AttachmentFiles/add(FileName='%s')",
		s.client.siteURL,
		odataLiteral(s.client.listTitle),
		url.PathEscape(itemID),
		odataLiteral(fileName),
	)
}

// odataLiteral escapes a value for use inside a single-quoted OData string
// that itself sits in a URL path.
func odataLiteral(v string) string {
	return url.PathEscape(strings.ReplaceAll(v, "'", "''"))
}

// classifyUpload maps a non-2xx attachment answer to the upload taxonomy.
func classifyUpload(op string, resp response) error {
	if resp.ok() {
		return nil
	}
	if isWriteConflict(resp.status) {
		return apperrors.NewUploadConflict(op, resp.status, resp.body)
	}
	return apperrors.NewUploadRejected(op, resp.status, resp.body)
}

func isWriteConflict(status int) bool {
	return status == http.StatusConflict
}
