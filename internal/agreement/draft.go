package agreement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/careportal/internal/domain"
)

// Operator-facing messages.
const (
	MsgSaved = "Agreement successfully saved!"

	msgNoDraft           = "No agreement is open."
	msgSignatureRequired = "Signature required"
	msgBranchRequired    = "Please select a branch."
	msgValidationPrefix  = "Validation Error:\n"
)

// AgreementStore is what the draft manager needs from the repository.
type AgreementStore interface {
	Create(ctx context.Context, sub domain.AgreementSubmission) (domain.AgreementSummary, error)
	List(ctx context.Context) ([]domain.AgreementSummary, error)
	CachedBranches() []domain.Branch
}

// SubmitResult is returned by a successful Submit.
type SubmitResult struct {
	Created    domain.AgreementSummary   `json:"created"`
	Message    string                    `json:"message"`
	Agreements []domain.AgreementSummary `json:"agreements"`
}

// DraftState is a snapshot of the intake form.
type DraftState struct {
	Open           bool                   `json:"open"`
	ShowForm       bool                   `json:"show_form"`
	Submitting     bool                   `json:"submitting"`
	SignatureEmpty bool                   `json:"signature_empty"`
	Draft          *domain.AgreementDraft `json:"draft,omitempty"`
}

// DraftManager owns the single in-progress agreement and its signature.
// At most one submission is in flight; a concurrent Submit is rejected.
type DraftManager struct {
	repo      AgreementStore
	logger    *slog.Logger
	now       func() time.Time
	signature *Signature

	submitting atomic.Bool

	mu       sync.Mutex
	draft    *domain.AgreementDraft
	showForm bool
	owner    string
	user     string
}

// NewDraftManager creates a manager with no draft open.
func NewDraftManager(repo AgreementStore, logger *slog.Logger) *DraftManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &DraftManager{
		repo:      repo,
		logger:    logger,
		now:       time.Now,
		signature: NewSignature(DefaultSignatureWidth, DefaultSignatureHeight),
	}
}

// Open shows the form, starting a fresh draft unless one is retained.
func (m *DraftManager) Open() DraftState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.draft == nil {
		d := domain.NewAgreementDraft(m.now())
		m.draft = &d
		m.owner = m.user
		m.signature.Clear()
	}
	m.showForm = true
	return m.stateLocked()
}

// Hide closes the form but keeps the draft for later.
func (m *DraftManager) Hide() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.showForm = false
}

// Discard throws the draft and signature away.
func (m *DraftManager) Discard() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitting.Load() {
		return domain.Busy()
	}
	m.resetLocked()
	return nil
}

// State returns a snapshot of the form.
func (m *DraftManager) State() DraftState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// ShowForm reports whether the form is visible.
func (m *DraftManager) ShowForm() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.showForm
}

// Update sets one field of the open draft.
func (m *DraftManager) Update(field, value string) (domain.AgreementDraft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitting.Load() {
		return domain.AgreementDraft{}, domain.Busy()
	}
	if m.draft == nil {
		return domain.AgreementDraft{}, domain.Validation(msgNoDraft)
	}
	if err := m.draft.Set(field, value); err != nil {
		return domain.AgreementDraft{}, &domain.Failure{Kind: domain.KindValidation, Message: err.Error(), Err: err}
	}
	return *m.draft, nil
}

// CaptureSignature appends pen strokes to the signature.
func (m *DraftManager) CaptureSignature(strokes ...Stroke) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.editableLocked(); err != nil {
		return err
	}
	m.signature.Capture(strokes...)
	return nil
}

// LoadSignature replaces the signature with a PNG data URL.
func (m *DraftManager) LoadSignature(dataURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.editableLocked(); err != nil {
		return err
	}
	if err := m.signature.LoadDataURL(dataURL); err != nil {
		return &domain.Failure{Kind: domain.KindValidation, Message: "Signature image is not a valid PNG.", Err: err}
	}
	return nil
}

// ClearSignature empties the signature.
func (m *DraftManager) ClearSignature() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitting.Load() {
		return domain.Busy()
	}
	m.signature.Clear()
	return nil
}

// SignatureEmpty reports whether the signature is empty.
func (m *DraftManager) SignatureEmpty() bool {
	return m.signature.IsEmpty()
}

// Signature exposes the signature buffer for rendering.
func (m *DraftManager) Signature() *Signature {
	return m.signature
}

// Submit validates the draft locally and sends one create request. On
// success the form is hidden, the draft reset and the list refreshed. On
// failure the draft is kept as it was.
func (m *DraftManager) Submit(ctx context.Context) (SubmitResult, error) {
	if !m.submitting.CompareAndSwap(false, true) {
		return SubmitResult{}, domain.Busy()
	}
	defer m.submitting.Store(false)

	m.mu.Lock()
	if m.draft == nil {
		m.mu.Unlock()
		return SubmitResult{}, domain.Validation(msgNoDraft)
	}
	draft := *m.draft
	m.mu.Unlock()

	if m.signature.IsEmpty() {
		return SubmitResult{}, domain.Validation(msgSignatureRequired)
	}
	if err := m.checkBranch(draft.BranchCode); err != nil {
		return SubmitResult{}, err
	}

	sig, err := m.signature.DataURL()
	if err != nil {
		return SubmitResult{}, &domain.Failure{Kind: domain.KindValidation, Message: msgSignatureRequired, Err: err}
	}

	created, err := m.repo.Create(ctx, draft.Submission(sig, m.now()))
	if err != nil {
		return SubmitResult{}, submitFailure(err)
	}
	m.logger.Info("Agreement created", "id", created.ID, "branch", draft.BranchCode)

	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()

	list, err := m.repo.List(ctx)
	if err != nil {
		m.logger.Warn("Failed to refresh agreements after submit", "error", err)
	}
	return SubmitResult{Created: created, Message: MsgSaved, Agreements: list}, nil
}

// OnSession is a session.Listener. Logging out hides the form and keeps the
// draft; a different operator logging in gets a fresh one.
func (m *DraftManager) OnSession(_, next domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !next.Authenticated() {
		m.showForm = false
		m.user = ""
		return
	}
	m.user = next.User.Identifier
	if m.draft != nil && m.owner != m.user {
		m.logger.Info("Discarding draft left by another operator")
		m.resetLocked()
	}
}

func (m *DraftManager) checkBranch(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Validation(msgBranchRequired)
	}
	branches := m.repo.CachedBranches()
	if len(branches) == 0 {
		return nil
	}
	for _, b := range branches {
		if b.Code == code {
			return nil
		}
	}
	return domain.Validation(fmt.Sprintf("Unknown branch %q. Please select a branch from the list.", code))
}

// editableLocked is checked with m.mu held. Submit sets the submitting flag
// before it takes m.mu for its snapshot, so an edit either lands before the
// snapshot or is rejected.
func (m *DraftManager) editableLocked() error {
	if m.submitting.Load() {
		return domain.Busy()
	}
	if m.draft == nil {
		return domain.Validation(msgNoDraft)
	}
	return nil
}

func (m *DraftManager) resetLocked() {
	m.draft = nil
	m.showForm = false
	m.owner = ""
	m.signature.Clear()
}

func (m *DraftManager) stateLocked() DraftState {
	st := DraftState{
		Open:           m.draft != nil,
		ShowForm:       m.showForm,
		Submitting:     m.submitting.Load(),
		SignatureEmpty: m.signature.IsEmpty(),
	}
	if m.draft != nil {
		d := *m.draft
		st.Draft = &d
	}
	return st
}

// submitFailure joins every field error of a 422 into one message.
func submitFailure(err error) error {
	f, ok := domain.AsFailure(err)
	if !ok {
		return &domain.Failure{Kind: domain.KindTransport, Message: domain.MsgConnectionFailed, Err: err}
	}
	if f.Kind == domain.KindBackend && len(f.Fields) > 0 {
		return &domain.Failure{
			Kind:    domain.KindBackend,
			Message: msgValidationPrefix + domain.JoinFieldErrors(f.Fields),
			Fields:  f.Fields,
			Err:     f.Err,
		}
	}
	return f
}
