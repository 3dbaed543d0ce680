package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/intake"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/resolution"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/ticketstore"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type fakeRules struct {
	created   service.TicketCreateInput
	actor     service.Actor
	confirmed service.TicketConfirmInput
	confirmFn func() error
}

func (f *fakeRules) CreateTicket(_ context.Context, actor service.Actor, input service.TicketCreateInput) (*domain.Ticket, error) {
	f.actor = actor
	f.created = input
	return &domain.Ticket{
		ID:           "0b8f0c2e-4a49-4c3e-9d3e-1d1c7a0f0001",
		Number:       42,
		ReporterName: input.ReporterName,
		Division:     input.Division,
		Priority:     domain.DerivePriority(input.Division),
		Description:  input.Description,
		Status:       domain.TicketStatusNew,
		Photo:        domain.URLRef("/tickets/0b8f0c2e-4a49-4c3e-9d3e-1d1c7a0f0001/photo"),
	}, nil
}

func (f *fakeRules) ListTickets(context.Context, domain.TicketStatus) ([]domain.Ticket, error) {
	return []domain.Ticket{}, nil
}

func (f *fakeRules) GetTicket(_ context.Context, id string) (*domain.Ticket, error) {
	return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
}

func (f *fakeRules) GetPhoto(context.Context, string) (*domain.File, error) {
	return &domain.File{Name: "foto.png", ContentType: "image/png", Data: pngBytes}, nil
}

func (f *fakeRules) ConfirmTicket(_ context.Context, _ service.Actor, _ string, input service.TicketConfirmInput) (*domain.Ticket, error) {
	f.confirmed = input
	if f.confirmFn != nil {
		if err := f.confirmFn(); err != nil {
			return nil, err
		}
	}
	return &domain.Ticket{Status: domain.TicketStatusDone}, nil
}

func (f *fakeRules) DeclineTicket(context.Context, service.Actor, string, service.TicketDeclineInput) (*domain.Ticket, error) {
	return &domain.Ticket{Status: domain.TicketStatusDeclined}, nil
}

func (f *fakeRules) ListHistory(context.Context, string) ([]domain.TicketHistory, error) {
	return []domain.TicketHistory{{ID: "h1", Operator: "Budi", OldStatus: domain.TicketStatusNew, NewStatus: domain.TicketStatusDone}}, nil
}

func newStoreApp(t *testing.T, rules handlers.TicketRules) (*fiber.App, *auth.TokenManager, *observability.Metrics) {
	t.Helper()
	tokens := auth.NewTokenManager("test-secret", 5)
	metrics := observability.NewMetrics()
	app := NewApp("store-test", nil, metrics, time.Second)
	RegisterStoreRoutes(app, StoreRoutes{
		Health:         handlers.NewHealthHandler("store-test", "test", metrics),
		Tickets:        handlers.NewTicketsHandler(rules),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return app, tokens, metrics
}

func bearer(t *testing.T, tokens *auth.TokenManager, subject, name string, role domain.Role) string {
	t.Helper()
	token, _, err := tokens.GenerateToken(subject, name, role)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return "Bearer " + token
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
	Data json.RawMessage `json:"data"`
}

func decode(t *testing.T, body io.Reader, out any) {
	t.Helper()
	if err := json.NewDecoder(body).Decode(out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	return body, writer.FormDataContentType()
}

func TestStoreRoutesRequireServiceOrOperator(t *testing.T) {
	app, tokens, _ := newStoreApp(t, &fakeRules{})

	cases := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing token", "", fiber.StatusUnauthorized, apperrors.CodeUnauthorized},
		{"reporter", bearer(t, tokens, "u1", "John", domain.RoleReporter), fiber.StatusForbidden, apperrors.CodeForbidden},
		{"service", bearer(t, tokens, "helpdesk", "helpdesk", domain.RoleService), fiber.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/tickets?status=Belum", nil)
			if tc.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tc.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
			if tc.code != "" {
				var env errorEnvelope
				decode(t, resp.Body, &env)
				if env.Error.Code != tc.code {
					t.Fatalf("code = %s, want %s", env.Error.Code, tc.code)
				}
			}
		})
	}
}

func TestStoreCreateTicketMultipart(t *testing.T) {
	rules := &fakeRules{}
	app, tokens, _ := newStoreApp(t, rules)

	body, contentType := multipartBody(t, map[string]string{
		"name":        "John",
		"division":    "TI & System",
		"priority":    "Normal",
		"description": "printer jam",
	}, "photo", "foto.png", pngBytes)
	req := httptest.NewRequest(fiber.MethodPost, "/tickets", body)
	req.Header.Set(fiber.HeaderContentType, contentType)
	req.Header.Set(fiber.HeaderAuthorization, bearer(t, tokens, "helpdesk", "helpdesk", domain.RoleService))

	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		OK       bool  `json:"ok"`
		TicketID int64 `json:"ticketId"`
		Row      struct {
			Status string `json:"status"`
			Photo  string `json:"photo"`
		} `json:"row"`
	}
	decode(t, resp.Body, &out)
	if !out.OK || out.TicketID != 42 || out.Row.Status != "Belum" || !strings.HasSuffix(out.Row.Photo, "/photo") {
		t.Fatalf("response = %+v", out)
	}
	if rules.created.Description != "printer jam" || rules.created.Photo == nil || !bytes.Equal(rules.created.Photo.Data, pngBytes) {
		t.Fatalf("service input = %+v", rules.created)
	}
	if rules.actor.Role != domain.RoleService {
		t.Fatalf("actor = %+v", rules.actor)
	}
}

func TestStoreErrorsRenderEnvelope(t *testing.T) {
	rules := &fakeRules{confirmFn: func() error { return apperrors.NewConflict("ticket already finalized", nil) }}
	app, tokens, metrics := newStoreApp(t, rules)
	serviceToken := bearer(t, tokens, "helpdesk", "helpdesk", domain.RoleService)

	req := httptest.NewRequest(fiber.MethodPost, "/tickets/abc/confirm", strings.NewReader(`{"operator":"Budi","status":"Selesai","sharePointItemId":"101"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, serviceToken)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var env errorEnvelope
	decode(t, resp.Body, &env)
	if env.Error.Code != apperrors.CodeConflict || env.Error.Message != "ticket already finalized" {
		t.Fatalf("envelope = %+v", env.Error)
	}
	if rules.confirmed.SharePointItemID != "101" || rules.confirmed.Operator != "Budi" {
		t.Fatalf("confirm input = %+v", rules.confirmed)
	}

	req = httptest.NewRequest(fiber.MethodGet, "/tickets/missing", nil)
	req.Header.Set(fiber.HeaderAuthorization, serviceToken)
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("get missing status = %d", resp.StatusCode)
	}

	resp, _ = app.Test(httptest.NewRequest(fiber.MethodGet, "/nowhere", nil))
	decode(t, resp.Body, &env)
	if resp.StatusCode != fiber.StatusNotFound || env.Error.Code != apperrors.CodeNotFound {
		t.Fatalf("unmatched route = %d %+v", resp.StatusCode, env.Error)
	}

	if len(metrics.Snapshot().Errors) == 0 {
		t.Fatal("expected error counters")
	}
}

func TestStorePhotoDownload(t *testing.T) {
	app, tokens, _ := newStoreApp(t, &fakeRules{})
	req := httptest.NewRequest(fiber.MethodGet, "/tickets/abc/photo", nil)
	req.Header.Set(fiber.HeaderAuthorization, bearer(t, tokens, "op", "Budi", domain.RoleOperator))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || !bytes.Equal(data, pngBytes) {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, data)
	}
	if got := resp.Header.Get(fiber.HeaderContentDisposition); !strings.Contains(got, "foto.png") {
		t.Fatalf("content disposition = %q", got)
	}
}

type recordingCreator struct {
	got ticketstore.CreateTicket
	err error
}

func (r *recordingCreator) Create(_ context.Context, in ticketstore.CreateTicket) (*ticketstore.Created, error) {
	r.got = in
	if r.err != nil {
		return nil, r.err
	}
	return &ticketstore.Created{Number: 7}, nil
}

type fakeResolver struct {
	confirm resolution.ConfirmRequest
	result  *resolution.Result
	err     error
}

func (f *fakeResolver) Confirm(_ context.Context, req resolution.ConfirmRequest) (*resolution.Result, error) {
	f.confirm = req
	return f.result, f.err
}

func (f *fakeResolver) Decline(context.Context, resolution.DeclineRequest) (*resolution.Result, error) {
	return f.result, f.err
}

func (f *fakeResolver) Finalize(context.Context, resolution.FinalizeRequest) (*resolution.Result, error) {
	return f.result, f.err
}

type fakePending struct{ status domain.TicketStatus }

func (f *fakePending) List(_ context.Context, status domain.TicketStatus) ([]domain.Ticket, error) {
	f.status = status
	return []domain.Ticket{{ID: "t1", Number: 3, Status: domain.TicketStatusNew}}, nil
}

func newHelpdeskApp(t *testing.T, creator intake.TicketCreator, pending handlers.PendingTickets, resolver handlers.Resolver) (*fiber.App, *auth.TokenManager) {
	t.Helper()
	sessions, err := intake.NewSessionStore(context.Background(), intake.StoreOptions{TTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sessions.Close() })
	conversations := intake.NewService(intake.Dependencies{
		Sessions: sessions,
		Catalog:  intake.DefaultCatalog(),
		Store:    creator,
	})
	tokens := auth.NewTokenManager("test-secret", 5)
	metrics := observability.NewMetrics()
	app := NewApp("helpdesk-test", nil, metrics, time.Second)
	RegisterHelpdeskRoutes(app, HelpdeskRoutes{
		Health:         handlers.NewHealthHandler("helpdesk-test", "test", metrics),
		Intake:         handlers.NewIntakeHandler(conversations),
		Resolution:     handlers.NewResolutionHandler(pending, resolver),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return app, tokens
}

type sessionEnvelope struct {
	Data struct {
		ID           string `json:"id"`
		Stage        string `json:"stage"`
		CanSubmit    bool   `json:"canSubmit"`
		TicketNumber int64  `json:"ticketNumber"`
		LastError    string `json:"lastError"`
		Recap        *struct {
			Priority string `json:"priority"`
		} `json:"recap"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestIntakeConversationOverHTTP(t *testing.T) {
	creator := &recordingCreator{}
	app, tokens := newHelpdeskApp(t, creator, &fakePending{}, &fakeResolver{})
	reporter := bearer(t, tokens, "u1", "John", domain.RoleReporter)

	call := func(method, path, contentType string, body io.Reader) (int, sessionEnvelope) {
		t.Helper()
		req := httptest.NewRequest(method, path, body)
		req.Header.Set(fiber.HeaderAuthorization, reporter)
		if contentType != "" {
			req.Header.Set(fiber.HeaderContentType, contentType)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		var env sessionEnvelope
		decode(t, resp.Body, &env)
		return resp.StatusCode, env
	}
	jsonBody := func(s string) io.Reader { return strings.NewReader(s) }

	status, env := call(fiber.MethodPost, "/intake/sessions", "", nil)
	if status != fiber.StatusCreated || env.Data.Stage != "start" {
		t.Fatalf("open = %d %+v", status, env)
	}
	base := "/intake/sessions/" + env.Data.ID

	call(fiber.MethodPost, base+"/start", "", nil)
	call(fiber.MethodPost, base+"/messages", fiber.MIMEApplicationJSON, jsonBody(`{"text":"printer jam"}`))
	_, env = call(fiber.MethodPost, base+"/messages", fiber.MIMEApplicationJSON, jsonBody(`{"text":"YA"}`))
	if env.Data.Stage != "needDivision" {
		t.Fatalf("stage after confirm = %s", env.Data.Stage)
	}

	status, env = call(fiber.MethodPost, base+"/division", fiber.MIMEApplicationJSON, jsonBody(`{"division":"Unknown"}`))
	if status != fiber.StatusBadRequest || env.Error.Code != apperrors.CodeValidation {
		t.Fatalf("unknown division = %d %+v", status, env.Error)
	}
	_, env = call(fiber.MethodPost, base+"/division", fiber.MIMEApplicationJSON, jsonBody(`{"division":"BOD (Urgent)"}`))
	if env.Data.Recap == nil || env.Data.Recap.Priority != "Urgent" {
		t.Fatalf("recap = %+v", env.Data.Recap)
	}

	status, _ = call(fiber.MethodPost, base+"/submit", "", nil)
	if status != fiber.StatusBadRequest || creator.got.Description != "" {
		t.Fatalf("submit before photo = %d, store called with %+v", status, creator.got)
	}

	body, contentType := multipartBody(t, nil, "photo", "foto.png", pngBytes)
	_, env = call(fiber.MethodPost, base+"/photo", contentType, body)
	if !env.Data.CanSubmit {
		t.Fatalf("photo not accepted: %+v", env)
	}

	_, env = call(fiber.MethodPost, base+"/submit", "", nil)
	if env.Data.Stage != "done" || env.Data.TicketNumber != 7 {
		t.Fatalf("submit = %+v", env)
	}
	if creator.got.ReporterName != "John" || creator.got.Priority != domain.TicketPriorityUrgent || creator.got.Photo == nil {
		t.Fatalf("store payload = %+v", creator.got)
	}

	other := bearer(t, tokens, "u2", "Jane", domain.RoleReporter)
	req := httptest.NewRequest(fiber.MethodGet, base, nil)
	req.Header.Set(fiber.HeaderAuthorization, other)
	resp, _ := app.Test(req)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("foreign session status = %d", resp.StatusCode)
	}
}

func TestIntakeSubmitFailureReturnsDraft(t *testing.T) {
	creator := &recordingCreator{err: apperrors.NewUpstreamError(apperrors.CodeUpstream, "create ticket", 500, []byte("db down"))}
	app, tokens := newHelpdeskApp(t, creator, &fakePending{}, &fakeResolver{})
	reporter := bearer(t, tokens, "u1", "John", domain.RoleReporter)

	do := func(path, contentType string, body io.Reader) *sessionEnvelope {
		req := httptest.NewRequest(fiber.MethodPost, path, body)
		req.Header.Set(fiber.HeaderAuthorization, reporter)
		if contentType != "" {
			req.Header.Set(fiber.HeaderContentType, contentType)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		var env sessionEnvelope
		decode(t, resp.Body, &env)
		return &env
	}
	id := do("/intake/sessions", "", nil).Data.ID
	base := "/intake/sessions/" + id
	do(base+"/start", "", nil)
	do(base+"/messages", fiber.MIMEApplicationJSON, strings.NewReader(`{"text":"AC bocor"}`))
	do(base+"/messages", fiber.MIMEApplicationJSON, strings.NewReader(`{"text":"ok"}`))
	do(base+"/division", fiber.MIMEApplicationJSON, strings.NewReader(`{"division":"Legal"}`))
	body, contentType := multipartBody(t, nil, "photo", "foto.png", pngBytes)
	do(base+"/photo", contentType, body)

	env := do(base+"/submit", "", nil)
	if env.Error.Code != apperrors.CodeUpstream || env.Data.Stage != "needPhoto" || env.Data.LastError == "" || !env.Data.CanSubmit {
		t.Fatalf("failed submit = %+v", env)
	}
}

func TestResolutionRoutes(t *testing.T) {
	pending := &fakePending{}
	resolver := &fakeResolver{
		result: &resolution.Result{TicketID: "t1", RemoteID: "101", Status: domain.TicketStatusDone},
		err:    apperrors.NewFinalizationFailure("101", errors.New("store down")),
	}
	app, tokens := newHelpdeskApp(t, &recordingCreator{}, pending, resolver)
	operator := bearer(t, tokens, "op1", "Budi", domain.RoleOperator)

	req := httptest.NewRequest(fiber.MethodGet, "/staff/tickets", nil)
	req.Header.Set(fiber.HeaderAuthorization, operator)
	resp, _ := app.Test(req)
	if resp.StatusCode != fiber.StatusOK || pending.status != domain.TicketStatusNew {
		t.Fatalf("list = %d, status filter %q", resp.StatusCode, pending.status)
	}

	req = httptest.NewRequest(fiber.MethodGet, "/staff/tickets", nil)
	req.Header.Set(fiber.HeaderAuthorization, bearer(t, tokens, "u1", "John", domain.RoleReporter))
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("reporter on staff route = %d", resp.StatusCode)
	}

	body, contentType := multipartBody(t, map[string]string{
		"title":      "Printer",
		"assignee":   "Jane",
		"status":     "Selesai",
		"finishedAt": "2026-10-15T10:30",
	}, "proof", "bukti.png", pngBytes)
	req = httptest.NewRequest(fiber.MethodPost, "/staff/tickets/t1/confirm", body)
	req.Header.Set(fiber.HeaderContentType, contentType)
	req.Header.Set(fiber.HeaderAuthorization, operator)
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("confirm status = %d", resp.StatusCode)
	}
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
		Data resolution.Result `json:"data"`
	}
	decode(t, resp.Body, &env)
	if env.Error.Code != apperrors.CodeFinalization || env.Data.RemoteID != "101" {
		t.Fatalf("confirm envelope = %+v", env)
	}
	got := resolver.confirm
	if got.Operator.Name != "Budi" || got.Form.Assignee != "Jane" || got.Proof == nil || got.Form.FinishedAt.IsZero() {
		t.Fatalf("confirm request = %+v", got)
	}
}
