// Package agreement holds the dashboard's agreement list and the intake
// draft being filled in.
package agreement

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/ashureev/careportal/internal/backend"
	"github.com/ashureev/careportal/internal/domain"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"
)

// Operator-facing messages.
const (
	msgListFailed     = "Could not load agreements."
	msgDocumentFailed = "Could not download the agreement."
	msgCreateFailed   = "Could not save the agreement. Please try again."
)

// Backend is the subset of the backend client used for agreements.
type Backend interface {
	ListAgreements(ctx context.Context) ([]domain.AgreementSummary, error)
	CreateAgreement(ctx context.Context, sub domain.AgreementSubmission) (domain.AgreementSummary, error)
	FetchAgreementPDF(ctx context.Context, id int64) ([]byte, error)
	ListBranches(ctx context.Context) ([]domain.Branch, error)
	Health(ctx context.Context) error
}

// SessionClearer ends the session when the backend rejects the token.
type SessionClearer interface {
	Clear(ctx context.Context) error
}

// Document is a downloaded agreement.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// Status is the dashboard's view of the repository.
type Status struct {
	Online     bool                      `json:"online"`
	Agreements []domain.AgreementSummary `json:"agreements"`
	Branches   []domain.Branch           `json:"branches"`
}

// Repository caches the agreement list, branch lookup and backend health
// for the signed-in operator.
type Repository struct {
	api      Backend
	sessions SessionClearer
	logger   *slog.Logger

	mu         sync.RWMutex
	agreements []domain.AgreementSummary
	branches   []domain.Branch
	online     bool
}

// NewRepository creates a Repository.
func NewRepository(api Backend, sessions SessionClearer, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{api: api, sessions: sessions, logger: logger}
}

// List fetches every agreement. A rejected token ends the session; any
// other failure keeps the previous list.
func (r *Repository) List(ctx context.Context) ([]domain.AgreementSummary, error) {
	list, err := r.api.ListAgreements(ctx)
	if err != nil {
		return r.Agreements(), r.classify(ctx, "list agreements", err, msgListFailed)
	}

	r.mu.Lock()
	r.agreements = list
	r.mu.Unlock()
	return cloneSummaries(list), nil
}

// Agreements returns the last list fetched.
func (r *Repository) Agreements() []domain.AgreementSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSummaries(r.agreements)
}

// Create submits one agreement.
func (r *Repository) Create(ctx context.Context, sub domain.AgreementSubmission) (domain.AgreementSummary, error) {
	created, err := r.api.CreateAgreement(ctx, sub)
	if err != nil {
		failure := r.classify(ctx, "create agreement", err, msgCreateFailed)
		// Only 422 field errors reach the operator; any other backend
		// rejection gets the generic message and keeps the cause in Err.
		if f, ok := domain.AsFailure(failure); ok && f.Kind == domain.KindBackend && len(f.Fields) == 0 {
			f.Message = msgCreateFailed
		}
		return domain.AgreementSummary{}, failure
	}
	return created, nil
}

// FetchDocument downloads the PDF for one agreement. The suggested name
// uses the care recipient's last name when the agreement is in the list.
func (r *Repository) FetchDocument(ctx context.Context, id int64) (Document, error) {
	data, err := r.api.FetchAgreementPDF(ctx, id)
	if err != nil {
		return Document{}, r.classify(ctx, "fetch document", err, msgDocumentFailed)
	}

	last := ""
	for _, a := range r.Agreements() {
		if a.ID == id {
			last = a.RecipientLast
			break
		}
	}
	return Document{
		Name:        domain.DocumentName(id, last),
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}, nil
}

// HealthCheck probes the backend. It only feeds the status badge.
func (r *Repository) HealthCheck(ctx context.Context) bool {
	online := r.api.Health(ctx) == nil
	r.mu.Lock()
	r.online = online
	r.mu.Unlock()
	return online
}

// Branches fetches the branch lookup sorted by name. On failure the last
// good lookup is returned, which is empty until one succeeds.
func (r *Repository) Branches(ctx context.Context) []domain.Branch {
	branches, err := r.api.ListBranches(ctx)
	if err != nil {
		r.logger.Warn("Branch lookup failed", "error", err)
		return r.CachedBranches()
	}
	sort.SliceStable(branches, func(i, j int) bool {
		return strings.ToLower(branches[i].Name) < strings.ToLower(branches[j].Name)
	})

	r.mu.Lock()
	r.branches = branches
	r.mu.Unlock()
	return append([]domain.Branch(nil), branches...)
}

// CachedBranches returns the last branch lookup.
func (r *Repository) CachedBranches() []domain.Branch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Branch(nil), r.branches...)
}

// Refresh loads the dashboard: agreements, branches and health in parallel.
// Only the agreement list can fail it.
func (r *Repository) Refresh(ctx context.Context) (Status, error) {
	var listErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, listErr = r.List(gctx)
		return nil
	})
	g.Go(func() error {
		r.Branches(gctx)
		return nil
	})
	g.Go(func() error {
		r.HealthCheck(gctx)
		return nil
	})
	_ = g.Wait()

	return r.Status(), listErr
}

// Status returns the cached dashboard state.
func (r *Repository) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		Online:     r.online,
		Agreements: cloneSummaries(r.agreements),
		Branches:   append([]domain.Branch(nil), r.branches...),
	}
}

// OnSession is a session.Listener. The cached list belongs to the session
// that fetched it.
func (r *Repository) OnSession(prev, next domain.Session) {
	if prev.Authenticated() && (!next.Authenticated() || prev.User.Identifier != next.User.Identifier) {
		r.mu.Lock()
		r.agreements = nil
		r.mu.Unlock()
	}
}

// classify maps a backend error to a Failure. A rejected token clears the
// session before returning.
func (r *Repository) classify(ctx context.Context, op string, err error, fallback string) error {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		r.logger.Info("Token rejected, ending session", "op", op)
		if clearErr := r.sessions.Clear(context.WithoutCancel(ctx)); clearErr != nil {
			r.logger.Error("Failed to clear session", "error", clearErr)
		}
		return &domain.Failure{Kind: domain.KindUnauthorized, Message: domain.MsgSessionExpired, Err: err}
	case errors.As(err, &apiErr):
		r.logger.Warn("Backend rejected request", "op", op, "status", apiErr.StatusCode, "error", err)
		msg := fallback
		if apiErr.Detail != "" && !apiErr.IsValidation() {
			msg = apiErr.Detail
		}
		return &domain.Failure{Kind: domain.KindBackend, Message: msg, Fields: apiErr.Fields, Err: err}
	default:
		r.logger.Warn("Backend unreachable", "op", op, "error", err)
		return &domain.Failure{Kind: domain.KindTransport, Message: domain.MsgConnectionFailed, Err: err}
	}
}

func cloneSummaries(in []domain.AgreementSummary) []domain.AgreementSummary {
	if in == nil {
		return nil
	}
	return append([]domain.AgreementSummary(nil), in...)
}
