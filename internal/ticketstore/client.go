package ticketstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// CreateTicket is what the intake flow submits.
type CreateTicket struct {
	ReporterName string
	Division     string
	Priority     domain.TicketPriority
	Description  string
	Photo        *domain.File
}

// Created reports the store-assigned identity of a new ticket.
type Created struct {
	Number int64
	Ticket domain.Ticket
}

// Confirmation finalizes a ticket on the confirm path.
type Confirmation struct {
	Operator         string
	Assignee         string
	Notes            string
	SharePointItemID string
	Status           domain.TicketStatus
}

// Declination finalizes a ticket on the decline path.
type Declination struct {
	Reason           string
	Operator         string
	SharePointItemID string
}

// Client consumes the primary ticket store HTTP API.
type Client struct {
	baseURL *url.URL
	tokens  oauth2.TokenSource
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds a store client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, tokens oauth2.TokenSource, logger *zap.Logger) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid ticket store url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid ticket store url %q", baseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: parsed,
		tokens:  tokens,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Named("ticketstore"),
	}, nil
}

// List returns tickets newest first, optionally filtered by status.
func (c *Client) List(ctx context.Context, status domain.TicketStatus) ([]domain.Ticket, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", string(status))
	}
	var out dto.ListTicketsResponse
	if err := c.doJSON(ctx, "list tickets", http.MethodGet, c.resolve("tickets", query), nil, &out); err != nil {
		return nil, err
	}
	tickets := make([]domain.Ticket, 0, len(out.Rows))
	for _, row := range out.Rows {
		ticket, err := TicketFromRow(row)
		if err != nil {
			c.logger.Warn("ignoring unreadable ticket photo", zap.String("id", row.ID), zap.Error(err))
		}
		tickets = append(tickets, ticket)
	}
	return tickets, nil
}

// Get loads one ticket by id.
func (c *Client) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	var row dto.TicketRow
	if err := c.doJSON(ctx, "get ticket", http.MethodGet, c.resolve("tickets/"+url.PathEscape(id), nil), nil, &row); err != nil {
		return nil, err
	}
	ticket, err := TicketFromRow(row)
	if err != nil {
		c.logger.Warn("ignoring unreadable ticket photo", zap.String("id", row.ID), zap.Error(err))
	}
	return &ticket, nil
}

// Create submits a new ticket. Required fields are checked before any
// request is made.
func (c *Client) Create(ctx context.Context, in CreateTicket) (*Created, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fields := [][2]string{
		{"name", in.ReporterName},
		{"division", in.Division},
		{"priority", string(in.Priority)},
		{"description", in.Description},
	}
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, fmt.Errorf("encode ticket: %w", err)
		}
	}
	if in.Photo != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename="%s"`, escapeQuotes(in.Photo.Name)))
		header.Set("Content-Type", in.Photo.ContentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("encode photo: %w", err)
		}
		if _, err := part.Write(in.Photo.Data); err != nil {
			return nil, fmt.Errorf("encode photo: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("encode ticket: %w", err)
	}

	var out dto.CreateTicketResponse
	req := outgoing{contentType: writer.FormDataContentType(), body: body.Bytes()}
	if err := c.doJSON(ctx, "create ticket", http.MethodPost, c.resolve("tickets", nil), &req, &out); err != nil {
		return nil, err
	}
	ticket, err := TicketFromRow(out.Row)
	if err != nil {
		c.logger.Warn("ignoring unreadable ticket photo", zap.String("id", out.Row.ID), zap.Error(err))
	}
	number := out.TicketID
	if number == 0 {
		number = ticket.Number
	}
	return &Created{Number: number, Ticket: ticket}, nil
}

// Confirm moves a pending ticket to a confirmation status.
func (c *Client) Confirm(ctx context.Context, id string, in Confirmation) error {
	status := in.Status
	if status == "" {
		status = domain.TicketStatusDone
	}
	payload := dto.ConfirmTicketRequest{
		Operator:         in.Operator,
		Assignee:         in.Assignee,
		Notes:            in.Notes,
		SharePointItemID: in.SharePointItemID,
		Status:           status,
	}
	return c.postJSON(ctx, "confirm ticket", "tickets/"+url.PathEscape(id)+"/confirm", payload)
}

// Decline moves a pending ticket to Ditolak.
func (c *Client) Decline(ctx context.Context, id string, in Declination) error {
	payload := dto.DeclineTicketRequest{
		Notes:            in.Reason,
		Operator:         in.Operator,
		SharePointItemID: in.SharePointItemID,
		Status:           domain.TicketStatusDeclined,
	}
	return c.postJSON(ctx, "decline ticket", "tickets/"+url.PathEscape(id)+"/decline", payload)
}

// Fetch resolves an attachment reference into bytes, downloading URL
// references and decoding inline ones.
func (c *Client) Fetch(ctx context.Context, ref domain.AttachmentRef) (*domain.File, error) {
	switch ref.Kind {
	case domain.AttachmentKindBase64:
		data, err := ref.Decode()
		if err != nil {
			return nil, apperrors.NewValidationError(err.Error(), nil)
		}
		contentType := ref.ContentType
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		return &domain.File{Name: ref.FileName, ContentType: contentType, Data: data}, nil
	case domain.AttachmentKindURL:
		return c.download(ctx, ref)
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown attachment kind %q", ref.Kind), nil)
	}
}

func (c *Client) download(ctx context.Context, ref domain.AttachmentRef) (*domain.File, error) {
	const op = "download attachment"
	target, err := c.attachmentURL(ref.Value)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid attachment url", map[string]any{"url": ref.Value})
	}
	resp, err := c.send(ctx, op, http.MethodGet, target.String(), nil, target.Host == c.baseURL.Host)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, storeError(op, resp)
	}
	contentType := resp.header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(resp.body)
	}
	name := ref.FileName
	if name == "" {
		name = fileNameFrom(resp.header, target)
	}
	return &domain.File{Name: name, ContentType: contentType, Data: resp.body}, nil
}

type outgoing struct {
	contentType string
	body        []byte
}

type incoming struct {
	status int
	header http.Header
	body   []byte
}

func (r incoming) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", op, err)
	}
	var out dto.OKResponse
	req := outgoing{contentType: "application/json", body: body}
	if err := c.doJSON(ctx, op, http.MethodPost, c.resolve(path, nil), &req, &out); err != nil {
		return err
	}
	if !out.OK {
		return apperrors.NewDomainError(apperrors.CodeUpstream, op+": store did not acknowledge", http.StatusBadGateway, nil)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, op, method, target string, req *outgoing, out any) error {
	resp, err := c.send(ctx, op, method, target, req, true)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return storeError(op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, op, method, target string, req *outgoing, authorize bool) (incoming, error) {
	var body io.Reader
	if req != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return incoming{}, fmt.Errorf("%s: build request: %w", op, err)
	}
	if req != nil && req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if authorize && c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return incoming{}, fmt.Errorf("%s: service token: %w", op, err)
		}
		token.SetAuthHeader(httpReq)
	}

	c.logger.Debug("request", zap.String("op", op), zap.String("method", method), zap.String("url", target))
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return incoming{}, apperrors.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil && !errors.Is(err, io.EOF) {
		return incoming{}, apperrors.NewNetworkError(op+": read body", err)
	}
	return incoming{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// attachmentURL keeps absolute URLs as they are and roots relative ones
// under the store base URL, path prefix included.
func (c *Client) attachmentURL(value string) (*url.URL, error) {
	parsed, err := url.Parse(value)
	if err != nil {
		return nil, err
	}
	if parsed.IsAbs() || parsed.Host != "" {
		return c.baseURL.ResolveReference(parsed), nil
	}
	return url.Parse(c.resolve(parsed.Path, parsed.Query()))
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// storeError turns a non-2xx store answer into a DomainError whose message
// is the store's own error text.
func storeError(op string, resp incoming) error {
	message := extractErrorMessage(resp.body)
	code := apperrors.CodeUpstream
	switch resp.status {
	case http.StatusConflict:
		code = apperrors.CodeConflict
	case http.StatusNotFound:
		code = apperrors.CodeNotFound
	}
	err := apperrors.NewUpstreamError(code, op, resp.status, resp.body).(*apperrors.DomainError)
	if message != "" {
		err.Message = op + ": " + message
	}
	if code != apperrors.CodeUpstream {
		err.HTTPStatus = resp.status
	}
	return err
}

// extractErrorMessage reads {error: "..."} or {error: {message: "..."}}.
func extractErrorMessage(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(envelope.Error, &text); err == nil {
		return text
	}
	var structured dto.ErrorBody
	if err := json.Unmarshal(envelope.Error, &structured); err == nil {
		return structured.Message
	}
	return ""
}

func validateCreate(in CreateTicket) error {
	missing := []string{}
	if strings.TrimSpace(in.ReporterName) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(in.Division) == "" {
		missing = append(missing, "division")
	}
	if strings.TrimSpace(in.Description) == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return apperrors.NewValidationError(strings.Join(missing, ", ")+" wajib diisi", map[string]any{"missing": missing})
	}
	return nil
}

func fileNameFrom(header http.Header, target *url.URL) string {
	if disposition := header.Get("Content-Disposition"); disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	segments := strings.Split(strings.Trim(target.Path, "/"), "/")
	return segments[len(segments)-1]
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
