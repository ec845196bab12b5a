package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/hr-ticketing/internal/config"
	"github.com/spec-kit/hr-ticketing/internal/domain"
	"github.com/spec-kit/hr-ticketing/internal/events"
	"github.com/spec-kit/hr-ticketing/internal/persistence"
	"github.com/spec-kit/hr-ticketing/internal/repository"
	"github.com/spec-kit/hr-ticketing/internal/storage"
	"github.com/spec-kit/hr-ticketing/pkg/util/errorutil"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type harness struct {
	svc       *TicketService
	users     repository.UserRepository
	tickets   repository.TicketRepository
	activity  repository.ActivityLogRepository
	notifier  *events.Notifier
	events    chan events.Event
	uploadDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	db, err := persistence.NewSQLite(context.Background(), config.SQLiteConfig{Path: filepath.Join(dir, "tickets.db")}, zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(db.Close)

	uploadDir := filepath.Join(dir, "uploads")
	store, err := storage.NewLocalStore(uploadDir, "/uploads", zap.NewNop())
	if err != nil {
		t.Fatalf("local store: %v", err)
	}

	h := &harness{
		users:     repository.NewSQLiteUserRepository(db.DB),
		tickets:   repository.NewSQLiteTicketRepository(db.DB),
		activity:  repository.NewSQLiteActivityLogRepository(db.DB),
		notifier:  events.NewNotifier(zap.NewNop(), events.NotifierOptions{QueueSize: 64}),
		events:    make(chan events.Event, 64),
		uploadDir: uploadDir,
	}
	if err := NewAuditService(h.activity, zap.NewNop()).RegisterHandlers(h.notifier); err != nil {
		t.Fatalf("register audit: %v", err)
	}
	err = h.notifier.Subscribe("recorder", func(_ context.Context, e events.Event) error {
		h.events <- e
		return nil
	}, events.EventTicketCreated, events.EventTicketClosed, events.EventTicketStatusChanged)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	h.notifier.Start()
	t.Cleanup(func() { _ = h.notifier.Close(context.Background()) })

	h.svc = NewTicketService(TicketDependencies{
		TicketRepo:   h.tickets,
		ActivityRepo: h.activity,
		Identities:   NewUserDirectory(h.users),
		Attachments:  store,
		Dispatcher:   h.notifier,
	})
	c := &clock{now: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
	h.svc.now = c.Now
	return h
}

func (h *harness) user(t *testing.T, name string, role domain.UserRole) *domain.User {
	t.Helper()
	u := &domain.User{Name: name, Email: name + "@example.com", PasswordHash: "x", Role: role}
	if err := h.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (h *harness) submit(t *testing.T, owner *domain.User, title string) *domain.Ticket {
	t.Helper()
	ticket, err := h.svc.Submit(context.Background(), owner.ID, SubmitInput{
		Title:       title,
		Description: "details",
		Category:    domain.TicketCategoryBug,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return ticket
}

// await returns the next n events or fails the test.
func (h *harness) await(t *testing.T, n int) []events.Event {
	t.Helper()
	out := make([]events.Event, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case e := <-h.events:
			out = append(out, e)
		case <-timeout:
			t.Fatalf("timed out waiting for %d events, got %d", n, len(out))
		}
	}
	return out
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if got := errorutil.CodeOf(err); got != code {
		t.Fatalf("expected %s, got %s (%v)", code, got, err)
	}
}

func assertClosedAtMatchesStatus(t *testing.T, ticket *domain.Ticket) {
	t.Helper()
	if (ticket.ClosedAt != nil) != (ticket.Status == domain.TicketStatusClosed) {
		t.Fatalf("closedAt/status mismatch: status=%s closedAt=%v", ticket.Status, ticket.ClosedAt)
	}
}

func TestPrinterBrokenLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u1 := h.user(t, "u1", domain.UserRoleEmployee)
	a1 := h.user(t, "a1", domain.UserRoleHRAdmin)
	admin := Actor{ID: a1.ID, Role: a1.Role, Elevated: true}

	ticket, err := h.svc.Submit(ctx, u1.ID, SubmitInput{
		Title:       "Printer broken",
		Description: "Paper jam on floor 3",
		Category:    domain.TicketCategoryBug,
		Priority:    domain.TicketPriorityHigh,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ticket.Status != domain.TicketStatusPending || ticket.SubmittedBy != u1.ID {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if ticket.TicketNumber != "TKT-000001" {
		t.Fatalf("unexpected ticket number %q", ticket.TicketNumber)
	}
	if ticket.SubmittedByEmail != "u1@example.com" || ticket.SubmittedByName != "u1" {
		t.Errorf("expected denormalized submitter, got %q / %q", ticket.SubmittedByEmail, ticket.SubmittedByName)
	}
	assertClosedAtMatchesStatus(t, ticket)
	if got := h.await(t, 1); got[0].Type != events.EventTicketCreated {
		t.Fatalf("expected created event, got %s", got[0].Type)
	}

	ticket, err = h.svc.TransitionStatus(ctx, TransitionInput{
		TicketID:  ticket.ID,
		Actor:     admin,
		NewStatus: domain.TicketStatusInProgress,
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if ticket.Status != domain.TicketStatusInProgress || len(ticket.StatusUpdates) != 1 {
		t.Fatalf("unexpected ticket after transition: %s, %d updates", ticket.Status, len(ticket.StatusUpdates))
	}
	if ticket.StatusUpdates[0].Description != "Status changed to In Progress" {
		t.Errorf("unexpected default note %q", ticket.StatusUpdates[0].Description)
	}
	assertClosedAtMatchesStatus(t, ticket)
	changed := h.await(t, 1)[0]
	payload, ok := changed.Payload.(events.TicketStatusChangedPayload)
	if changed.Type != events.EventTicketStatusChanged || !ok {
		t.Fatalf("expected status changed event, got %s", changed.Type)
	}
	if payload.OldStatus != domain.TicketStatusPending || payload.NewStatus != domain.TicketStatusInProgress {
		t.Errorf("unexpected payload %+v", payload)
	}
	if changed.Actor.UserID != a1.ID || changed.Actor.Role != domain.UserRoleHRAdmin {
		t.Errorf("unexpected event actor %+v", changed.Actor)
	}

	ticket, err = h.svc.Close(ctx, ticket.ID, admin)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if ticket.Status != domain.TicketStatusClosed || ticket.ClosedAt == nil {
		t.Fatalf("expected closed ticket with closedAt")
	}
	if len(ticket.StatusUpdates) != 2 || ticket.StatusUpdates[1].Description != "Ticket closed" {
		t.Errorf("expected one more status update, got %+v", ticket.StatusUpdates)
	}
	assertClosedAtMatchesStatus(t, ticket)
	closing := h.await(t, 2)
	if closing[0].Type != events.EventTicketClosed || closing[1].Type != events.EventTicketStatusChanged {
		t.Fatalf("expected closed then status changed, got %s then %s", closing[0].Type, closing[1].Type)
	}

	title := "Printer fixed?"
	_, err = h.svc.UpdateInfo(ctx, ticket.ID, u1.ID, UpdateInfoInput{Title: &title})
	assertCode(t, err, errorutil.CodeInvalidState)

	if err := h.notifier.Close(ctx); err != nil {
		t.Fatalf("close notifier: %v", err)
	}
	activity, err := h.svc.ListActivity(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	wantActions := []domain.ActivityAction{domain.ActivityCreated, domain.ActivityStatusUpdate, domain.ActivityClosed, domain.ActivityStatusUpdate}
	if len(activity) != len(wantActions) {
		t.Fatalf("expected %d activity entries, got %d", len(wantActions), len(activity))
	}
	for i, action := range wantActions {
		if activity[i].Action != action {
			t.Errorf("entry %d: expected %s, got %s", i, action, activity[i].Action)
		}
	}
	if activity[1].Details != "Status changed from Pending to In Progress" {
		t.Errorf("unexpected details %q", activity[1].Details)
	}
	if activity[2].PerformedBy != a1.ID {
		t.Errorf("expected closure performed by admin, got %q", activity[2].PerformedBy)
	}
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)
	owner := h.user(t, "owner", domain.UserRoleEmployee)

	tests := []struct {
		name  string
		input SubmitInput
	}{
		{name: "missing title", input: SubmitInput{Description: "d", Category: domain.TicketCategoryBug}},
		{name: "blank description", input: SubmitInput{Title: "t", Description: "   ", Category: domain.TicketCategoryBug}},
		{name: "unknown category", input: SubmitInput{Title: "t", Description: "d", Category: "Hardware"}},
		{name: "unknown priority", input: SubmitInput{Title: "t", Description: "d", Category: domain.TicketCategoryBug, Priority: "Urgent"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Submit(context.Background(), owner.ID, tt.input)
			assertCode(t, err, errorutil.CodeValidation)
		})
	}

	ticket := h.submit(t, owner, "defaults")
	if ticket.Priority != domain.TicketPriorityMedium {
		t.Errorf("expected default priority Medium, got %s", ticket.Priority)
	}
}

func TestSubmitUnknownActor(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Submit(context.Background(), "ghost", SubmitInput{Title: "t", Description: "d", Category: domain.TicketCategoryBug})
	assertCode(t, err, errorutil.CodeNotFound)
}

func TestSubmitRejectedAttachmentLeavesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.user(t, "owner", domain.UserRoleEmployee)

	_, err := h.svc.Submit(ctx, owner.ID, SubmitInput{
		Title:       "with files",
		Description: "d",
		Category:    domain.TicketCategoryBug,
		Attachments: []AttachmentUpload{
			{FileName: "ok.png", MimeType: "image/png", Data: pngBytes},
			{FileName: "doc.pdf", MimeType: "application/pdf", Data: []byte("%PDF-1.7")},
		},
	})
	assertCode(t, err, errorutil.CodeValidation)

	count, _ := h.tickets.Count(ctx)
	if count != 0 {
		t.Errorf("expected no tickets, got %d", count)
	}
	entries, _ := os.ReadDir(h.uploadDir)
	if len(entries) != 0 {
		t.Errorf("expected no stored files, got %d", len(entries))
	}
}

func TestSubmitStoresAttachments(t *testing.T) {
	h := newHarness(t)
	owner := h.user(t, "owner", domain.UserRoleEmployee)

	ticket, err := h.svc.Submit(context.Background(), owner.ID, SubmitInput{
		Title:       "screenshot",
		Description: "d",
		Category:    domain.TicketCategoryTechnicalIssue,
		Attachments: []AttachmentUpload{{FileName: "screen.png", MimeType: "image/png", Data: pngBytes}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(ticket.Attachments) != 1 || ticket.Attachments[0].FileName != "screen.png" {
		t.Fatalf("unexpected attachments %+v", ticket.Attachments)
	}
	entries, _ := os.ReadDir(h.uploadDir)
	if len(entries) != 1 {
		t.Errorf("expected 1 stored file, got %d", len(entries))
	}
}

func TestTicketNumbersAreSequential(t *testing.T) {
	h := newHarness(t)
	owner := h.user(t, "owner", domain.UserRoleEmployee)
	for i, want := range []string{"TKT-000001", "TKT-000002", "TKT-000003"} {
		ticket := h.submit(t, owner, "ticket")
		if ticket.TicketNumber != want {
			t.Errorf("ticket %d: expected %s, got %s", i, want, ticket.TicketNumber)
		}
	}
}

func TestUpdateInfo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.user(t, "owner", domain.UserRoleEmployee)
	other := h.user(t, "other", domain.UserRoleEmployee)
	admin := h.user(t, "admin", domain.UserRoleHRAdmin)
	ticket := h.submit(t, owner, "original")

	title := "  renamed  "
	priority := domain.TicketPriorityCritical
	updated, err := h.svc.UpdateInfo(ctx, ticket.ID, owner.ID, UpdateInfoInput{Title: &title, Priority: &priority})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "renamed" || updated.Priority != domain.TicketPriorityCritical || updated.Status != domain.TicketStatusPending {
		t.Errorf("unexpected update result %+v", updated)
	}

	_, err = h.svc.UpdateInfo(ctx, ticket.ID, other.ID, UpdateInfoInput{Title: &title})
	assertCode(t, err, errorutil.CodeForbidden)
	_, err = h.svc.UpdateInfo(ctx, ticket.ID, admin.ID, UpdateInfoInput{Title: &title})
	assertCode(t, err, errorutil.CodeForbidden)

	bad := domain.TicketCategory("Nope")
	_, err = h.svc.UpdateInfo(ctx, ticket.ID, owner.ID, UpdateInfoInput{Category: &bad})
	assertCode(t, err, errorutil.CodeValidation)

	_, err = h.svc.UpdateInfo(ctx, "missing", owner.ID, UpdateInfoInput{Title: &title})
	assertCode(t, err, errorutil.CodeNotFound)

	if _, err := h.svc.Close(ctx, ticket.ID, Actor{ID: admin.ID, Elevated: true}); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, actor := range []string{owner.ID, other.ID, admin.ID} {
		_, err = h.svc.UpdateInfo(ctx, ticket.ID, actor, UpdateInfoInput{Title: &title})
		assertCode(t, err, errorutil.CodeInvalidState)
	}
}

func TestTransitionStatusErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.user(t, "owner", domain.UserRoleEmployee)
	admin := Actor{ID: h.user(t, "admin", domain.UserRoleHRAdmin).ID, Elevated: true}
	ticket := h.submit(t, owner, "t")

	_, err := h.svc.TransitionStatus(ctx, TransitionInput{TicketID: ticket.ID, Actor: Actor{ID: owner.ID}, NewStatus: domain.TicketStatusResolved})
	assertCode(t, err, errorutil.CodeForbidden)

	_, err = h.svc.TransitionStatus(ctx, TransitionInput{TicketID: ticket.ID, Actor: admin, NewStatus: "Archived"})
	assertCode(t, err, errorutil.CodeValidation)

	_, err = h.svc.TransitionStatus(ctx, TransitionInput{TicketID: "missing", Actor: admin, NewStatus: domain.TicketStatusResolved})
	assertCode(t, err, errorutil.CodeNotFound)

	_, err = h.svc.TransitionStatus(ctx, TransitionInput{
		TicketID:   ticket.ID,
		Actor:      admin,
		NewStatus:  domain.TicketStatusResolved,
		Attachment: &AttachmentUpload{FileName: "notes.txt", MimeType: "text/plain", Data: []byte("hi")},
	})
	assertCode(t, err, errorutil.CodeValidation)

	got, _ := h.svc.Get(ctx, ticket.ID)
	if got.Status != domain.TicketStatusPending || len(got.StatusUpdates) != 0 {
		t.Fatalf("failed transitions must not mutate the ticket: %+v", got)
	}

	if _, err := h.svc.Close(ctx, ticket.ID, admin); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, status := range domain.TicketStatuses {
		_, err = h.svc.TransitionStatus(ctx, TransitionInput{TicketID: ticket.ID, Actor: admin, NewStatus: status})
		assertCode(t, err, errorutil.CodeInvalidState)
	}
}

func TestTransitionGraphIsPermissive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.user(t, "owner", domain.UserRoleEmployee)
	admin := Actor{ID: h.user(t, "admin", domain.UserRoleHRAdmin).ID, Elevated: true}
	ticket := h.submit(t, owner, "t")

	path := []domain.TicketStatus{
		domain.TicketStatusResolved,
		domain.TicketStatusPending,
		domain.TicketStatusPending,
		domain.TicketStatusInProgress,
		domain.TicketStatusClosed,
	}
	for _, status := range path {
		updated, err := h.svc.TransitionStatus(ctx, TransitionInput{TicketID: ticket.ID, Actor: admin, NewStatus: status, Note: "step"})
		if err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
		assertClosedAtMatchesStatus(t, updated)
	}
	got, _ := h.svc.Get(ctx, ticket.ID)
	if len(got.StatusUpdates) != len(path) {
		t.Errorf("expected %d status updates, got %d", len(path), len(got.StatusUpdates))
	}
	assertClosedAtMatchesStatus(t, got)
}

func TestTransitionEventRoleComesFromActor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.user(t, "owner", domain.UserRoleEmployee)
	admin := h.user(t, "admin", domain.UserRoleHRAdmin)
	ticket := h.submit(t, owner, "t")
	h.await(t, 1)

	_, err := h.svc.TransitionStatus(ctx, TransitionInput{
		TicketID:  ticket.ID,
		Actor:     Actor{ID: admin.ID, Elevated: true},
		NewStatus: domain.TicketStatusClosed,
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	for _, e := range h.await(t, 2) {
		if e.Actor.UserID != admin.ID || e.Actor.Role != "" {
			t.Errorf("%s: expected actor without a role, got %+v", e.Type, e.Actor)
		}
	}
}

func TestTransitionWithAttachment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.user(t, "owner", domain.UserRoleEmployee)
	admin := Actor{ID: h.user(t, "admin", domain.UserRoleHRAdmin).ID, Elevated: true}
	ticket := h.submit(t, owner, "t")

	updated, err := h.svc.TransitionStatus(ctx, TransitionInput{
		TicketID:   ticket.ID,
		Actor:      admin,
		NewStatus:  domain.TicketStatusResolved,
		Note:       "replaced toner",
		Attachment: &AttachmentUpload{FileName: "proof.png", MimeType: "image/png", Data: pngBytes},
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	update := updated.StatusUpdates[0]
	if update.Attachment == nil || update.Attachment.FileName != "proof.png" || update.UpdatedBy != admin.ID {
		t.Errorf("unexpected status update %+v", update)
	}
}

func TestListFilters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice", domain.UserRoleEmployee)
	bob := h.user(t, "bob", domain.UserRoleEmployee)
	admin := Actor{ID: h.user(t, "admin", domain.UserRoleHRAdmin).ID, Elevated: true}

	first := h.submit(t, alice, "first")
	second := h.submit(t, bob, "second")
	third := h.submit(t, alice, "third")
	if _, err := h.svc.TransitionStatus(ctx, TransitionInput{TicketID: second.ID, Actor: admin, NewStatus: domain.TicketStatusResolved}); err != nil {
		t.Fatalf("transition: %v", err)
	}

	pending := domain.TicketStatusPending
	got, err := h.svc.List(ctx, TicketListFilter{Status: &pending})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != third.ID || got[1].ID != first.ID {
		t.Fatalf("expected pending tickets newest first, got %+v", got)
	}
	for _, ticket := range got {
		if ticket.Status != domain.TicketStatusPending {
			t.Errorf("unexpected status %s", ticket.Status)
		}
	}

	got, _ = h.svc.List(ctx, TicketListFilter{OwnedBy: &bob.ID})
	if len(got) != 1 || got[0].ID != second.ID {
		t.Errorf("expected bob's ticket only, got %d", len(got))
	}

	from, to := first.CreatedAt, second.CreatedAt
	got, _ = h.svc.List(ctx, TicketListFilter{From: &from, To: &to})
	if len(got) != 2 {
		t.Errorf("expected inclusive range to match 2 tickets, got %d", len(got))
	}
	got, _ = h.svc.List(ctx, TicketListFilter{From: &to})
	if len(got) != 3 {
		t.Errorf("expected a lone bound to be ignored, got %d tickets", len(got))
	}
}

func TestListActivityUnknownTicket(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ListActivity(context.Background(), "missing")
	assertCode(t, err, errorutil.CodeNotFound)
}

type failingTickets struct {
	repository.TicketRepository
}

func (failingTickets) Save(context.Context, *domain.Ticket) error {
	return os.ErrClosed
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.user(t, "owner", domain.UserRoleEmployee)

	broken := events.NewNotifier(zap.NewNop(), events.NotifierOptions{QueueSize: 1})
	_ = broken.Subscribe("down", func(context.Context, events.Event) error {
		return os.ErrDeadlineExceeded
	}, events.EventTicketCreated)
	broken.Start()
	defer broken.Close(ctx)
	h.svc.dispatcher = broken

	if _, err := h.svc.Submit(ctx, owner.ID, SubmitInput{Title: "t", Description: "d", Category: domain.TicketCategoryBug}); err != nil {
		t.Fatalf("submit must succeed when the audit sink fails: %v", err)
	}
}

func TestSaveFailureRemovesStatusAttachment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.user(t, "owner", domain.UserRoleEmployee)
	admin := Actor{ID: h.user(t, "admin", domain.UserRoleHRAdmin).ID, Elevated: true}
	ticket := h.submit(t, owner, "t")
	h.await(t, 1)

	h.svc.tickets = failingTickets{TicketRepository: h.tickets}
	_, err := h.svc.TransitionStatus(ctx, TransitionInput{
		TicketID:   ticket.ID,
		Actor:      admin,
		NewStatus:  domain.TicketStatusResolved,
		Attachment: &AttachmentUpload{FileName: "proof.png", MimeType: "image/png", Data: pngBytes},
	})
	assertCode(t, err, errorutil.CodeInternal)

	entries, _ := os.ReadDir(h.uploadDir)
	if len(entries) != 0 {
		t.Errorf("expected orphaned attachment to be removed, got %d files", len(entries))
	}
	select {
	case e := <-h.events:
		t.Errorf("unexpected event %s after failed save", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}
