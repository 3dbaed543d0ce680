package resolution

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/graph"
	"github.com/spec-kit/helpdesk-service/internal/ticketstore"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

// memoryStore mimics the primary store, including its pending-only rule.
type memoryStore struct {
	mu         sync.Mutex
	tickets    map[string]*domain.Ticket
	confirmErr error
	fetches    int
	finalizes  int
}

func newMemoryStore(tickets ...domain.Ticket) *memoryStore {
	s := &memoryStore{tickets: map[string]*domain.Ticket{}}
	for i := range tickets {
		t := tickets[i]
		s.tickets[t.ID] = &t
	}
	return s
}

func (s *memoryStore) Get(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	copied := *t
	return &copied, nil
}

func (s *memoryStore) Confirm(_ context.Context, id string, in ticketstore.Confirmation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizes++
	if s.confirmErr != nil {
		return s.confirmErr
	}
	t := s.tickets[id]
	if t.Status != domain.TicketStatusNew {
		return apperrors.NewConflict("ticket already finalized", nil)
	}
	t.Status = in.Status
	t.Assignee = in.Assignee
	t.Operator = in.Operator
	t.SharePointItemID = in.SharePointItemID
	return nil
}

func (s *memoryStore) Decline(_ context.Context, id string, in ticketstore.Declination) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizes++
	t := s.tickets[id]
	if t.Status != domain.TicketStatusNew {
		return apperrors.NewConflict("ticket already finalized", nil)
	}
	t.Status = domain.TicketStatusDeclined
	t.Notes = in.Reason
	t.Operator = in.Operator
	t.SharePointItemID = in.SharePointItemID
	return nil
}

func (s *memoryStore) Fetch(_ context.Context, ref domain.AttachmentRef) (*domain.File, error) {
	s.mu.Lock()
	s.fetches++
	s.mu.Unlock()
	data, err := ref.Decode()
	if err != nil {
		return nil, err
	}
	return &domain.File{ContentType: ref.ContentType, Data: data}, nil
}

type fakeRecords struct {
	fields  []domain.RemoteFields
	err     error
	started chan struct{}
	block   chan struct{}
}

func (f *fakeRecords) CreateItem(_ context.Context, fields domain.RemoteFields) (string, error) {
	if f.block != nil {
		f.started <- struct{}{}
		<-f.block
		f.block = nil
	}
	f.fields = append(f.fields, fields)
	if f.err != nil {
		return "", f.err
	}
	return "101", nil
}

type countingStrategy struct {
	name    string
	results []error
	calls   int
}

func (s *countingStrategy) Name() string { return s.name }

func (s *countingStrategy) Upload(_ context.Context, _ string, file domain.File) (*domain.Descriptor, error) {
	s.calls++
	if len(s.results) > 0 {
		err := s.results[0]
		if len(s.results) > 1 {
			s.results = s.results[1:]
		}
		if err != nil {
			return nil, err
		}
	}
	return &domain.Descriptor{FileName: file.Name}, nil
}

func pendingTicket(id string) domain.Ticket {
	return domain.Ticket{
		ID:           id,
		Number:       12,
		CreatedAt:    fixedNow.Add(-time.Hour),
		ReporterName: "John",
		Division:     "TI & System",
		Priority:     domain.TicketPriorityNormal,
		Description:  "printer jam",
		Status:       domain.TicketStatusNew,
		Photo:        domain.Base64Ref(base64.StdEncoding.EncodeToString(pngBytes), "image/png"),
	}
}

func proofPhoto() *domain.File {
	return &domain.File{Name: "bukti.png", ContentType: "image/png", Data: pngBytes}
}

func conflictErr() error {
	return apperrors.NewUploadConflict("upload", http.StatusConflict, []byte("save conflict"))
}

func newWorkflow(store TicketStore, records RecordCreator, uploader AttachmentUploader, dispatcher events.Dispatcher) *Workflow {
	return NewWorkflow(Dependencies{
		Store:      store,
		Records:    records,
		Uploader:   uploader,
		Dispatcher: dispatcher,
		Now:        func() time.Time { return fixedNow },
	})
}

func TestConfirmEndToEnd(t *testing.T) {
	store := newMemoryStore(pendingTicket("t-1"))
	records := &fakeRecords{}
	primary := &countingStrategy{name: "graph"}
	wf := newWorkflow(store, records, graph.NewUploader(nil, nil, primary), nil)

	result, err := wf.Confirm(context.Background(), ConfirmRequest{
		TicketID: "t-1",
		Form:     domain.ResolutionForm{Assignee: "Jane", TicketType: "Hardware"},
		Proof:    proofPhoto(),
		Operator: Operator{ID: "op-1", Name: "Budi"},
	})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	ticket, _ := store.Get(context.Background(), "t-1")
	if ticket.Status != domain.TicketStatusDone || ticket.SharePointItemID != "101" || ticket.Assignee != "Jane" || ticket.Operator != "Budi" {
		t.Fatalf("ticket = %+v", ticket)
	}
	if result.RemoteID != "101" || result.Status != domain.TicketStatusDone {
		t.Fatalf("result = %+v", result)
	}
	if !result.Incident.Attempted || result.Incident.Descriptor == nil || !result.Proof.Attempted || result.Proof.Descriptor == nil {
		t.Fatalf("attachments = %+v / %+v", result.Incident, result.Proof)
	}
	if primary.calls != 2 {
		t.Fatalf("upload calls = %d, want 2", primary.calls)
	}
	fields := records.fields[0]
	if fields[domain.RemoteFieldAssignee] != "Jane" || fields[domain.RemoteFieldStatus] != domain.TicketStatusDone {
		t.Errorf("fields = %v", fields)
	}
	if fields[domain.RemoteFieldFinishedAt] != fixedNow {
		t.Errorf("finished at = %v", fields[domain.RemoteFieldFinishedAt])
	}
}

func TestRecordCreationFailureLeavesTicketAlone(t *testing.T) {
	store := newMemoryStore(pendingTicket("t-1"))
	records := &fakeRecords{err: apperrors.NewUpstreamError(apperrors.CodeUpstream, "create list item", http.StatusForbidden, []byte("denied"))}
	primary := &countingStrategy{name: "graph"}
	wf := newWorkflow(store, records, graph.NewUploader(nil, nil, primary), nil)

	_, err := wf.Confirm(context.Background(), ConfirmRequest{TicketID: "t-1", Proof: proofPhoto(), Operator: Operator{Name: "Budi"}})
	if !apperrors.HasCode(err, apperrors.CodeRecordCreation) {
		t.Fatalf("expected record creation failure, got %v", err)
	}
	if got := apperrors.ToDomainError(err).Details["status"]; got != http.StatusForbidden {
		t.Errorf("status detail = %v", got)
	}
	ticket, _ := store.Get(context.Background(), "t-1")
	if ticket.Status != domain.TicketStatusNew {
		t.Fatalf("status = %s", ticket.Status)
	}
	if primary.calls != 0 || store.fetches != 0 || store.finalizes != 0 {
		t.Fatalf("uploads %d, fetches %d, finalizes %d", primary.calls, store.fetches, store.finalizes)
	}
}

func TestUploadsExhaustedStillFinalize(t *testing.T) {
	for _, decline := range []bool{false, true} {
		store := newMemoryStore(pendingTicket("t-1"))
		primary := &countingStrategy{name: "graph", results: []error{apperrors.NewUploadRejected("upload", http.StatusBadRequest, nil)}}
		fallback := &countingStrategy{name: "sharepoint-rest", results: []error{conflictErr()}}
		policy := graph.RetryPolicy{
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     40 * time.Millisecond,
			Multiplier:   2,
			Sleep:        func(context.Context, time.Duration) error { return nil },
		}
		dispatcher := events.NewInMemoryDispatcher(nil)
		var failures int
		dispatcher.Subscribe(events.EventAttachmentUploadFailed, func(context.Context, events.Event) error {
			failures++
			return nil
		})
		wf := newWorkflow(store, &fakeRecords{}, graph.NewUploader(nil, nil, primary, policy.Wrap(fallback)), dispatcher)

		var result *Result
		var err error
		if decline {
			result, err = wf.Decline(context.Background(), DeclineRequest{TicketID: "t-1", Reason: "duplikat", Proof: proofPhoto(), Operator: Operator{Name: "Budi"}})
		} else {
			result, err = wf.Confirm(context.Background(), ConfirmRequest{TicketID: "t-1", Proof: proofPhoto(), Operator: Operator{Name: "Budi"}})
		}
		if err != nil {
			t.Fatalf("decline=%v: %v", decline, err)
		}

		want := domain.TicketStatusDone
		if decline {
			want = domain.TicketStatusDeclined
		}
		ticket, _ := store.Get(context.Background(), "t-1")
		if ticket.Status != want || ticket.SharePointItemID != "101" {
			t.Fatalf("decline=%v ticket = %+v", decline, ticket)
		}
		if result.Incident.Descriptor != nil || result.Proof.Descriptor != nil {
			t.Fatalf("decline=%v attachments referenced", decline)
		}
		if result.Incident.Code != apperrors.CodeUploadConflict || result.Proof.Code != apperrors.CodeUploadConflict {
			t.Fatalf("decline=%v codes = %s / %s", decline, result.Incident.Code, result.Proof.Code)
		}
		if fallback.calls != 2*len(policy.Delays()) {
			t.Fatalf("decline=%v fallback calls = %d", decline, fallback.calls)
		}
		if failures != 2 {
			t.Fatalf("decline=%v failure events = %d", decline, failures)
		}
	}
}

func TestFinalizationFailureCarriesRemoteID(t *testing.T) {
	store := newMemoryStore(pendingTicket("t-1"))
	store.confirmErr = apperrors.NewNetworkError("confirm ticket", errors.New("connection reset"))
	wf := newWorkflow(store, &fakeRecords{}, graph.NewUploader(nil, nil, &countingStrategy{name: "graph"}), nil)

	result, err := wf.Confirm(context.Background(), ConfirmRequest{TicketID: "t-1", Operator: Operator{Name: "Budi"}})
	if !apperrors.HasCode(err, apperrors.CodeFinalization) {
		t.Fatalf("expected finalization failure, got %v", err)
	}
	if result == nil || result.RemoteID != "101" {
		t.Fatalf("result = %+v", result)
	}
	if got := apperrors.ToDomainError(err).Details["sharePointItemId"]; got != "101" {
		t.Fatalf("remote id detail = %v", got)
	}

	store.confirmErr = nil
	retried, err := wf.Finalize(context.Background(), FinalizeRequest{TicketID: "t-1", RemoteID: "101", Assignee: "Jane", Operator: Operator{Name: "Budi"}})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	ticket, _ := store.Get(context.Background(), "t-1")
	if ticket.Status != domain.TicketStatusDone || ticket.SharePointItemID != "101" || retried.RemoteID != "101" {
		t.Fatalf("ticket = %+v", ticket)
	}
}

func TestSecondResolutionIsRejected(t *testing.T) {
	store := newMemoryStore(pendingTicket("t-1"))
	records := &fakeRecords{started: make(chan struct{}), block: make(chan struct{})}
	wf := newWorkflow(store, records, graph.NewUploader(nil, nil, &countingStrategy{name: "graph"}), nil)

	done := make(chan error, 1)
	go func() {
		_, err := wf.Confirm(context.Background(), ConfirmRequest{TicketID: "t-1", Operator: Operator{Name: "A"}})
		done <- err
	}()

	select {
	case <-records.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first workflow never reached record creation")
	}

	_, err := wf.Decline(context.Background(), DeclineRequest{TicketID: "t-1", Reason: "x", Operator: Operator{Name: "B"}})
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	close(records.block)
	if err := <-done; err != nil {
		t.Fatalf("first workflow: %v", err)
	}

	_, err = wf.Confirm(context.Background(), ConfirmRequest{TicketID: "t-1", Operator: Operator{Name: "C"}})
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict on finalized ticket, got %v", err)
	}
	if len(records.fields) != 1 {
		t.Fatalf("remote records = %d, want 1", len(records.fields))
	}
}

func TestDeclinePayload(t *testing.T) {
	fields, err := BuildDeclineFields(pendingTicket("t-1"), "Budi", "bukan masalah TI", fixedNow)
	if err != nil {
		t.Fatalf("BuildDeclineFields: %v", err)
	}
	if fields[domain.RemoteFieldStatus] != domain.TicketStatusDeclined {
		t.Errorf("status = %v", fields[domain.RemoteFieldStatus])
	}
	description, _ := fields[domain.RemoteFieldDescription].(string)
	for _, part := range []string{"Budi", "02 Mar 2026 09:30", "bukan masalah TI"} {
		if !strings.Contains(description, part) {
			t.Errorf("description %q missing %q", description, part)
		}
	}
	if _, err := BuildDeclineFields(pendingTicket("t-1"), "Budi", "  ", fixedNow); !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Errorf("blank reason: %v", err)
	}
}

func TestConfirmRejectsUnknownStatus(t *testing.T) {
	store := newMemoryStore(pendingTicket("t-1"))
	records := &fakeRecords{}
	wf := newWorkflow(store, records, graph.NewUploader(nil, nil), nil)

	_, err := wf.Confirm(context.Background(), ConfirmRequest{TicketID: "t-1", Form: domain.ResolutionForm{Status: domain.TicketStatusDeclined}})
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(records.fields) != 0 {
		t.Fatal("record created for invalid form")
	}
}
