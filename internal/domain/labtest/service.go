package labtest

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/labportal/portal/internal/platform/auth"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create registers a new test request for a patient. The code is assigned
// here if the caller did not provide one.
func (s *Service) Create(ctx context.Context, t *Test) error {
	if t.Code == "" {
		code, err := newCode(time.Now())
		if err != nil {
			return err
		}
		t.Code = code
	}
	if err := t.Validate(); err != nil {
		return err
	}
	t.Status = StatusRequested
	if t.RequestedAt.IsZero() {
		t.RequestedAt = time.Now()
	}
	return s.repo.Create(ctx, t)
}

// TakeInCharge moves a requested test to in_progress and records the
// biologist who owns it from here on. Identity comes from the token, so
// the name is denormalized onto the test for later display.
func (s *Service) TakeInCharge(ctx context.Context, id uuid.UUID, biologist auth.Principal) (*Test, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(t.Status, StatusInProgress) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidState, t.Status, StatusInProgress)
	}
	t.assign(biologist)
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// MarkExecuted records that the analysis has been completed at the bench.
// A result summary may be attached in the same call.
func (s *Service) MarkExecuted(ctx context.Context, id uuid.UUID, resultSummary string) (*Test, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(t.Status, StatusExecuted) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidState, t.Status, StatusExecuted)
	}
	now := time.Now()
	t.Status = StatusExecuted
	t.ExecutedAt = &now
	if resultSummary != "" {
		t.ResultSummary = &resultSummary
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// RecordResult upserts the result summary of a test that has not yet been
// reported. The first write against a requested test moves it to
// in_progress and assigns the writing biologist.
func (s *Service) RecordResult(ctx context.Context, id uuid.UUID, biologist auth.Principal, resultSummary string) (*Test, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case StatusRequested:
		t.assign(biologist)
	case StatusInProgress, StatusExecuted:
	default:
		return nil, fmt.Errorf("%w: cannot record result in state %s", ErrInvalidState, t.Status)
	}
	t.ResultSummary = &resultSummary
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Test, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (*Test, error) {
	return s.repo.GetByCode(ctx, code)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Test, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

func (t *Test) assign(biologist auth.Principal) {
	now := time.Now()
	t.Status = StatusInProgress
	t.AssignedTo = &biologist.ID
	if biologist.Name != "" {
		t.AssignedName = &biologist.Name
	}
	t.TakenAt = &now
}

func newCode(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate test code: %w", err)
	}
	return fmt.Sprintf("LAB-%d-%06d", now.Year(), n.Int64()), nil
}
