package agreement

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ashureev/careportal/internal/domain"
)

type fakeBackend struct {
	creates  atomic.Int32
	lists    atomic.Int32
	block    chan struct{}
	entered  chan struct{}
	createFn func(domain.AgreementSubmission) (domain.AgreementSummary, error)

	mu        sync.Mutex
	list      []domain.AgreementSummary
	listErr   error
	branches  []domain.Branch
	branchErr error
	pdf       []byte
	pdfErr    error
	healthErr error
	lastSub   domain.AgreementSubmission
}

func (f *fakeBackend) ListAgreements(context.Context) ([]domain.AgreementSummary, error) {
	f.lists.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.AgreementSummary(nil), f.list...), nil
}

func (f *fakeBackend) CreateAgreement(_ context.Context, sub domain.AgreementSubmission) (domain.AgreementSummary, error) {
	f.creates.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.lastSub = sub
	f.mu.Unlock()
	if f.createFn != nil {
		return f.createFn(sub)
	}
	created := domain.AgreementSummary{ID: 100, RecipientLast: sub.CareLastName, BranchCode: sub.BranchCode}
	f.mu.Lock()
	f.list = append(f.list, created)
	f.mu.Unlock()
	return created, nil
}

func (f *fakeBackend) FetchAgreementPDF(context.Context, int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pdf, f.pdfErr
}

func (f *fakeBackend) ListBranches(context.Context) ([]domain.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Branch(nil), f.branches...), f.branchErr
}

func (f *fakeBackend) Health(context.Context) error {
	return f.healthErr
}

type fakeSessions struct {
	clears atomic.Int32
}

func (s *fakeSessions) Clear(context.Context) error {
	s.clears.Add(1)
	return nil
}
