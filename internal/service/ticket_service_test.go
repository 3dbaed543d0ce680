package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

// memoryRepo implements the three repositories over maps with the same
// pending-only finalization rule as the SQL.
type memoryRepo struct {
	mu      sync.Mutex
	seq     int64
	tickets map[string]*domain.Ticket
	photos  map[string]*domain.File
	history []domain.TicketHistory
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{tickets: map[string]*domain.Ticket{}, photos: map[string]*domain.File{}}
}

func (r *memoryRepo) Create(_ context.Context, ticket *domain.Ticket, photo *domain.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ticket.ID = uuid.NewString()
	ticket.Number = r.seq
	ticket.CreatedAt = time.Unix(r.seq, 0)
	if photo != nil {
		r.photos[ticket.ID] = photo
		ticket.Photo = domain.URLRef(repository.PhotoPath(ticket.ID))
	}
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *t
	return &copied, nil
}

func (r *memoryRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Ticket{}
	for _, t := range r.tickets {
		if filter.Status == nil || t.Status == *filter.Status {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepo) Finalize(_ context.Context, update repository.Finalization) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[update.TicketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if t.Status != domain.TicketStatusNew {
		return nil, repository.ErrNotPending
	}
	t.Status = update.Status
	t.Assignee = update.Assignee
	t.Notes = update.Notes
	t.Operator = update.Operator
	t.SharePointItemID = update.SharePointItemID
	copied := *t
	return &copied, nil
}

func (r *memoryRepo) GetByTicket(_ context.Context, id string) (*domain.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.photos[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return p, nil
}

type memoryHistory struct{ repo *memoryRepo }

func (h memoryHistory) Create(_ context.Context, entry *domain.TicketHistory) error {
	h.repo.mu.Lock()
	defer h.repo.mu.Unlock()
	entry.ID = uuid.NewString()
	h.repo.history = append(h.repo.history, *entry)
	return nil
}

func (h memoryHistory) ListByTicket(_ context.Context, id string) ([]domain.TicketHistory, error) {
	h.repo.mu.Lock()
	defer h.repo.mu.Unlock()
	out := []domain.TicketHistory{}
	for _, e := range h.repo.history {
		if e.TicketID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func newTestService(dispatcher events.Dispatcher) (*TicketService, *memoryRepo) {
	repo := newMemoryRepo()
	return NewTicketService(TicketDependencies{
		TicketRepo:  repo,
		PhotoRepo:   repo,
		HistoryRepo: memoryHistory{repo: repo},
		Dispatcher:  dispatcher,
	}), repo
}

var reporter = Actor{SubjectID: "helpdesk", Name: "helpdesk", Role: domain.RoleService}

func TestCreateTicketAlwaysPending(t *testing.T) {
	svc, repo := newTestService(nil)
	ticket, err := svc.CreateTicket(context.Background(), reporter, TicketCreateInput{
		ReporterName: " John ",
		Division:     "TI & System",
		Description:  "printer jam",
		Photo:        &domain.File{Name: "p.png", ContentType: "application/octet-stream", Data: pngBytes},
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if ticket.Status != domain.TicketStatusNew || ticket.Number != 1 || ticket.ReporterName != "John" {
		t.Fatalf("ticket = %+v", ticket)
	}
	if ticket.Priority != domain.TicketPriorityNormal {
		t.Errorf("priority = %s", ticket.Priority)
	}
	if got := repo.photos[ticket.ID].ContentType; got != "image/png" {
		t.Errorf("stored content type = %s", got)
	}
	if ticket.Photo == nil || ticket.Photo.Value != "/tickets/"+ticket.ID+"/photo" {
		t.Errorf("photo ref = %+v", ticket.Photo)
	}
}

func TestCreateTicketValidation(t *testing.T) {
	svc, _ := newTestService(nil)
	cases := []TicketCreateInput{
		{Division: "Legal", Description: "x"},
		{ReporterName: "a", Description: "x"},
		{ReporterName: "a", Division: "Legal"},
		{ReporterName: "a", Division: "Legal", Description: "x", Priority: "Critical"},
		{ReporterName: "a", Division: "Legal", Description: "x", Photo: &domain.File{Name: "a.pdf", Data: []byte("%PDF-1.4")}},
	}
	for i, input := range cases {
		if _, err := svc.CreateTicket(context.Background(), reporter, input); !apperrors.HasCode(err, apperrors.CodeValidation) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestConfirmOnlyFromPending(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	var changes []events.TicketStatusChangedPayload
	dispatcher.Subscribe(events.EventTicketStatusChanged, func(_ context.Context, e events.Event) error {
		changes = append(changes, e.Payload.(events.TicketStatusChangedPayload))
		return nil
	})
	svc, _ := newTestService(dispatcher)
	ctx := context.Background()
	ticket, _ := svc.CreateTicket(ctx, reporter, TicketCreateInput{ReporterName: "John", Division: "Legal", Description: "x"})

	confirmed, err := svc.ConfirmTicket(ctx, reporter, ticket.ID, TicketConfirmInput{Operator: "Budi", Assignee: "Jane", SharePointItemID: "101"})
	if err != nil {
		t.Fatalf("ConfirmTicket: %v", err)
	}
	if confirmed.Status != domain.TicketStatusDone || confirmed.SharePointItemID != "101" || confirmed.Assignee != "Jane" {
		t.Fatalf("confirmed = %+v", confirmed)
	}

	_, err = svc.DeclineTicket(ctx, reporter, ticket.ID, TicketDeclineInput{Notes: "x", Operator: "Other"})
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	history, err := svc.ListHistory(ctx, ticket.ID)
	if err != nil || len(history) != 1 || history[0].NewStatus != domain.TicketStatusDone {
		t.Fatalf("history = %+v, %v", history, err)
	}
	if len(changes) != 1 || changes[0].NewStatus != domain.TicketStatusDone {
		t.Fatalf("events = %+v", changes)
	}
}

func TestFinalizeValidation(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()
	ticket, _ := svc.CreateTicket(ctx, reporter, TicketCreateInput{ReporterName: "John", Division: "Legal", Description: "x"})

	if _, err := svc.ConfirmTicket(ctx, reporter, ticket.ID, TicketConfirmInput{Operator: "Budi", Status: domain.TicketStatusDeclined}); !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Errorf("confirm with Ditolak: %v", err)
	}
	if _, err := svc.ConfirmTicket(ctx, reporter, ticket.ID, TicketConfirmInput{}); !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Errorf("confirm without operator: %v", err)
	}
	if _, err := svc.DeclineTicket(ctx, reporter, ticket.ID, TicketDeclineInput{Operator: "Budi"}); !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Errorf("decline without reason: %v", err)
	}
	if _, err := svc.DeclineTicket(ctx, reporter, ticket.ID, TicketDeclineInput{Operator: "Budi", Notes: "x", Status: domain.TicketStatusDone}); !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Errorf("decline with Selesai: %v", err)
	}
	if _, err := svc.ConfirmTicket(ctx, reporter, uuid.NewString(), TicketConfirmInput{Operator: "Budi"}); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Errorf("unknown ticket: %v", err)
	}
	if _, err := svc.GetTicket(ctx, "not-a-uuid"); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Errorf("malformed id: %v", err)
	}

	declined, err := svc.DeclineTicket(ctx, reporter, ticket.ID, TicketDeclineInput{Operator: "Budi", Notes: "duplikat", Status: domain.TicketStatusDeclined})
	if err != nil || declined.Status != domain.TicketStatusDeclined || declined.Notes != "duplikat" {
		t.Fatalf("declined = %+v, %v", declined, err)
	}
}

func TestListTicketsFilters(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()
	first, _ := svc.CreateTicket(ctx, reporter, TicketCreateInput{ReporterName: "a", Division: "Legal", Description: "1"})
	second, _ := svc.CreateTicket(ctx, reporter, TicketCreateInput{ReporterName: "b", Division: "Legal", Description: "2"})
	if _, err := svc.ConfirmTicket(ctx, reporter, first.ID, TicketConfirmInput{Operator: "op"}); err != nil {
		t.Fatal(err)
	}

	pending, err := svc.ListTickets(ctx, domain.TicketStatusNew)
	if err != nil || len(pending) != 1 || pending[0].ID != second.ID {
		t.Fatalf("pending = %+v, %v", pending, err)
	}
	all, _ := svc.ListTickets(ctx, "")
	if len(all) != 2 || all[0].ID != second.ID {
		t.Fatalf("all = %+v", all)
	}
	if _, err := svc.ListTickets(ctx, "Open"); !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("bad status: %v", err)
	}
}

func TestNotificationServiceSubscribes(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	NewNotificationService(dispatcher, nil, config.NotificationConfig{WebhookURL: "http://hook"}).RegisterHandlers()
	if err := dispatcher.Publish(context.Background(), events.Event{Type: events.EventTicketFinalizationFailed, TicketID: "t"}); err != nil {
		t.Fatal(err)
	}
}
