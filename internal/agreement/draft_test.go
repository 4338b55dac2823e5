package agreement

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/careportal/internal/backend"
	"github.com/ashureev/careportal/internal/domain"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newManager(api *fakeBackend) (*DraftManager, *Repository, *fakeSessions) {
	sessions := &fakeSessions{}
	repo := NewRepository(api, sessions, nil)
	m := NewDraftManager(repo, nil)
	m.now = func() time.Time { return fixedNow }
	return m, repo, sessions
}

func fillDraft(t *testing.T, m *DraftManager) {
	t.Helper()
	m.Open()
	fields := map[string]string{
		"clt_first_name":  "Ann",
		"clt_last_name":   "Lee",
		"clt_address":     "1 Main St",
		"care_first_name": "Rose",
		"care_last_name":  "Lee",
		"branch_code":     "B1",
		"hourly_rate":     "31.50",
		"mileage_rate":    "abc",
	}
	for k, v := range fields {
		if _, err := m.Update(k, v); err != nil {
			t.Fatalf("Update(%s) failed: %v", k, err)
		}
	}
}

func TestDraftManager_OpenDefaults(t *testing.T) {
	m, _, _ := newManager(&fakeBackend{})
	st := m.Open()
	if !st.ShowForm || st.Draft == nil {
		t.Fatalf("Expected open form with draft, got %+v", st)
	}
	d := st.Draft
	if d.ClientTitle != "Mr." || d.ClientState != "MD" || d.CareTitle != "Mrs." || d.AgreementDate != "2026-03-14" {
		t.Errorf("unexpected defaults %+v", d)
	}
}

func TestDraftManager_UpdateDerivesResponsibleParty(t *testing.T) {
	m, _, _ := newManager(&fakeBackend{})
	m.Open()

	if _, err := m.Update("clt_first_name", " Ann "); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	d, err := m.Update("clt_last_name", "Lee ")
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if d.ResponsibleParty != "Ann  Lee" {
		t.Errorf("unexpected responsible party %q", d.ResponsibleParty)
	}

	if _, err := m.Update("no_such_field", "x"); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("Expected validation error for unknown field, got %v", err)
	}
}

func TestDraftManager_UpdateWithoutDraft(t *testing.T) {
	m, _, _ := newManager(&fakeBackend{})
	if _, err := m.Update("clt_first_name", "Ann"); !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("Expected validation error, got %v", err)
	}
}

func TestDraftManager_SubmitEmptySignatureSendsNothing(t *testing.T) {
	api := &fakeBackend{}
	m, _, _ := newManager(api)
	fillDraft(t, m)

	_, err := m.Submit(context.Background())
	f, ok := domain.AsFailure(err)
	if !ok || f.Kind != domain.KindValidation || f.Message != "Signature required" {
		t.Fatalf("Expected signature validation error, got %v", err)
	}
	if api.creates.Load() != 0 {
		t.Fatalf("Expected zero create requests, got %d", api.creates.Load())
	}
	if st := m.State(); st.Draft == nil || st.Draft.ClientFirstName != "Ann" {
		t.Fatal("Expected draft to be kept")
	}
}

func TestDraftManager_SubmitSuccess(t *testing.T) {
	api := &fakeBackend{}
	m, repo, _ := newManager(api)
	fillDraft(t, m)
	if err := m.CaptureSignature(Stroke{{X: 1, Y: 1}, {X: 20, Y: 20}}); err != nil {
		t.Fatalf("CaptureSignature failed: %v", err)
	}

	res, err := m.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Message != MsgSaved {
		t.Errorf("Expected success message, got %q", res.Message)
	}

	st := m.State()
	if st.ShowForm || st.Open || !st.SignatureEmpty {
		t.Errorf("Expected form hidden and draft cleared, got %+v", st)
	}
	if api.lists.Load() != 1 || len(repo.Agreements()) != 1 {
		t.Errorf("Expected list refreshed once, lists=%d agreements=%d", api.lists.Load(), len(repo.Agreements()))
	}

	sub := api.lastSub
	if sub.StartDate != "2026-03-14" || sub.EndDate != nil || sub.CareDOB != nil {
		t.Errorf("unexpected date defaults start=%q end=%v dob=%v", sub.StartDate, sub.EndDate, sub.CareDOB)
	}
	if sub.HourlyRate != 31.5 || sub.MileageRate != 0 {
		t.Errorf("unexpected rates %v %v", sub.HourlyRate, sub.MileageRate)
	}
	if sub.RepSignature != domain.DefaultRepSignature || !strings.HasPrefix(sub.ClientSignature, "data:image/png;base64,") {
		t.Errorf("unexpected signatures rep=%q client=%.30q", sub.RepSignature, sub.ClientSignature)
	}
	if sub.ResponsibleParty != "Ann Lee" {
		t.Errorf("unexpected responsible party %q", sub.ResponsibleParty)
	}
}

func TestDraftManager_ConcurrentSubmitSendsOneRequest(t *testing.T) {
	api := &fakeBackend{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	m, _, _ := newManager(api)
	fillDraft(t, m)
	if err := m.CaptureSignature(Stroke{{X: 1, Y: 1}}); err != nil {
		t.Fatalf("CaptureSignature failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = m.Submit(context.Background())
	}()
	<-api.entered

	_, err := m.Submit(context.Background())
	if !domain.IsKind(err, domain.KindBusy) {
		t.Fatalf("Expected second submit to be rejected as busy, got %v", err)
	}
	if _, err := m.Update("clt_first_name", "Bob"); !domain.IsKind(err, domain.KindBusy) {
		t.Fatalf("Expected edits during submission to be rejected, got %v", err)
	}

	close(api.block)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first submit failed: %v", firstErr)
	}
	if n := api.creates.Load(); n != 1 {
		t.Fatalf("Expected exactly one create request, got %d", n)
	}
}

func TestDraftManager_Submit422JoinsAllFields(t *testing.T) {
	api := &fakeBackend{createFn: func(domain.AgreementSubmission) (domain.AgreementSummary, error) {
		return domain.AgreementSummary{}, &backend.APIError{
			StatusCode: 422,
			Fields: []domain.FieldError{
				{Field: "clt_first_name", Message: "field required"},
				{Field: "hourly_rate", Message: "value is not a valid float"},
			},
		}
	}}
	m, _, _ := newManager(api)
	fillDraft(t, m)
	_ = m.CaptureSignature(Stroke{{X: 1, Y: 1}})

	_, err := m.Submit(context.Background())
	f, ok := domain.AsFailure(err)
	if !ok || f.Kind != domain.KindBackend {
		t.Fatalf("Expected backend failure, got %v", err)
	}
	for _, name := range []string{"clt_first_name", "hourly_rate"} {
		if !strings.Contains(f.Message, name) {
			t.Errorf("Expected message to mention %s, got %q", name, f.Message)
		}
	}
	if st := m.State(); !st.Open || !st.ShowForm || st.SignatureEmpty {
		t.Errorf("Expected draft and signature kept after 422, got %+v", st)
	}
}

func TestDraftManager_SubmitTransportFailureKeepsDraft(t *testing.T) {
	api := &fakeBackend{createFn: func(domain.AgreementSubmission) (domain.AgreementSummary, error) {
		return domain.AgreementSummary{}, &backend.TransportError{Op: "create agreement", Err: context.DeadlineExceeded}
	}}
	m, _, _ := newManager(api)
	fillDraft(t, m)
	_ = m.CaptureSignature(Stroke{{X: 1, Y: 1}})

	_, err := m.Submit(context.Background())
	if !domain.IsKind(err, domain.KindTransport) {
		t.Fatalf("Expected transport failure, got %v", err)
	}
	if st := m.State(); st.Draft == nil || st.Draft.CareLastName != "Lee" {
		t.Fatal("Expected draft intact after failure")
	}
}

func TestDraftManager_SubmitServerErrorShowsGenericMessage(t *testing.T) {
	api := &fakeBackend{createFn: func(domain.AgreementSubmission) (domain.AgreementSummary, error) {
		return domain.AgreementSummary{}, &backend.APIError{
			StatusCode: 500,
			Detail:     "sqlalchemy IntegrityError: NOT NULL constraint failed",
		}
	}}
	m, _, _ := newManager(api)
	fillDraft(t, m)
	_ = m.CaptureSignature(Stroke{{X: 1, Y: 1}})

	_, err := m.Submit(context.Background())
	f, ok := domain.AsFailure(err)
	if !ok || f.Kind != domain.KindBackend {
		t.Fatalf("Expected backend failure, got %v", err)
	}
	if f.Message != msgCreateFailed {
		t.Errorf("Message = %q, want %q", f.Message, msgCreateFailed)
	}
	if strings.Contains(f.Message, "sqlalchemy") {
		t.Errorf("backend detail leaked to the operator: %q", f.Message)
	}
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 {
		t.Errorf("Expected the backend error to stay wrapped, got %v", err)
	}
	if st := m.State(); st.Draft == nil || st.Draft.CareLastName != "Lee" || st.SignatureEmpty {
		t.Errorf("Expected draft and signature kept after failure, got %+v", st)
	}
}

func TestDraftManager_EditWaitingOnLockDuringSubmitIsRejected(t *testing.T) {
	m, _, _ := newManager(&fakeBackend{})
	fillDraft(t, m)

	// Hold the draft lock the way Submit's snapshot does, queue an edit
	// behind it, then mark the submission as in flight.
	m.mu.Lock()
	done := make(chan error, 1)
	go func() {
		_, err := m.Update("clt_first_name", "Bob")
		done <- err
	}()
	m.submitting.Store(true)
	m.mu.Unlock()

	if err := <-done; !domain.IsKind(err, domain.KindBusy) {
		t.Fatalf("Expected queued edit to be rejected as busy, got %v", err)
	}
	m.submitting.Store(false)
	if st := m.State(); st.Draft.ClientFirstName != "Ann" {
		t.Errorf("ClientFirstName = %q, want Ann", st.Draft.ClientFirstName)
	}
}

func TestDraftManager_BranchValidation(t *testing.T) {
	api := &fakeBackend{branches: []domain.Branch{{Code: "B2", Name: "Arlington"}}}
	m, repo, _ := newManager(api)
	repo.Branches(context.Background())
	fillDraft(t, m)
	_ = m.CaptureSignature(Stroke{{X: 1, Y: 1}})

	if _, err := m.Submit(context.Background()); !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("Expected unknown branch to fail validation, got %v", err)
	}
	if api.creates.Load() != 0 {
		t.Fatal("Expected no request for an unknown branch")
	}

	if _, err := m.Update("branch_code", "B2"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := m.Submit(context.Background()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
}

func TestDraftManager_MissingBranchAlwaysRejected(t *testing.T) {
	api := &fakeBackend{}
	m, _, _ := newManager(api)
	m.Open()
	_ = m.CaptureSignature(Stroke{{X: 1, Y: 1}})

	if _, err := m.Submit(context.Background()); !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("Expected missing branch to fail validation, got %v", err)
	}
	if api.creates.Load() != 0 {
		t.Fatal("Expected no request without a branch")
	}
}

func TestDraftManager_SessionChanges(t *testing.T) {
	m, _, _ := newManager(&fakeBackend{})
	alice := domain.Session{Token: "A", User: &domain.User{Identifier: "alice"}}
	bob := domain.Session{Token: "B", User: &domain.User{Identifier: "bob"}}

	m.OnSession(domain.Session{}, alice)
	fillDraft(t, m)

	m.OnSession(alice, domain.Session{})
	if st := m.State(); st.ShowForm || !st.Open {
		t.Fatalf("Expected logout to hide the form and keep the draft, got %+v", st)
	}

	m.OnSession(domain.Session{}, alice)
	if st := m.State(); !st.Open {
		t.Fatal("Expected the same operator to get the draft back")
	}

	m.OnSession(alice, domain.Session{})
	m.OnSession(domain.Session{}, bob)
	if st := m.State(); st.Open {
		t.Fatal("Expected another operator's draft to be discarded")
	}
}

func TestDraftManager_ClearSignature(t *testing.T) {
	m, _, _ := newManager(&fakeBackend{})
	m.Open()
	_ = m.CaptureSignature(Stroke{{X: 1, Y: 1}})
	if m.SignatureEmpty() {
		t.Fatal("Expected signature after capture")
	}
	if err := m.ClearSignature(); err != nil {
		t.Fatalf("ClearSignature failed: %v", err)
	}
	if !m.SignatureEmpty() {
		t.Fatal("Expected empty signature right after clear")
	}
}
