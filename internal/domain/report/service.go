package report

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labportal/portal/internal/domain/labtest"
	"github.com/labportal/portal/internal/domain/patient"
	"github.com/labportal/portal/internal/platform/artifact"
	"github.com/labportal/portal/internal/platform/auth"
	"github.com/labportal/portal/internal/platform/db"
	"github.com/labportal/portal/internal/platform/integrity"
	"github.com/labportal/portal/internal/platform/seal"
)

// Categories whose externally produced artifacts are stored inside a
// fiscal-code-keyed envelope. Genetic results never touch disk in clear.
var sealedCategories = map[string]bool{
	"genetic": true,
}

type Service struct {
	reports  Repository
	tests    labtest.Repository
	patients patient.Repository
	store    *artifact.Store
	renderer Renderer
	tx       db.TxRunner
	log      zerolog.Logger
}

func NewService(reports Repository, tests labtest.Repository, patients patient.Repository,
	store *artifact.Store, renderer Renderer, tx db.TxRunner, log zerolog.Logger) *Service {
	return &Service{
		reports:  reports,
		tests:    tests,
		patients: patients,
		store:    store,
		renderer: renderer,
		tx:       tx,
		log:      log,
	}
}

// Generate renders the report for an executed test, takes the artifact into
// custody and advances the test to reported. The file is written before the
// transaction commits; if the commit fails the file is removed, so a report
// row never references a missing artifact.
func (s *Service) Generate(ctx context.Context, principal auth.Principal, testID uuid.UUID) (*Report, error) {
	var rep *Report
	var written string

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := s.tests.GetForUpdate(ctx, testID)
		if err != nil {
			return mapTestErr(err)
		}
		if t.Status != labtest.StatusExecuted {
			return fmt.Errorf("%w: cannot generate report for test in state %s", ErrInvalidState, t.Status)
		}
		if _, err := s.reports.GetByTestID(ctx, testID); err == nil {
			return fmt.Errorf("%w: report already exists for test %s", ErrInvalidState, t.Code)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		p, err := s.patients.GetByID(ctx, t.PatientID)
		if err != nil {
			return err
		}
		data, err := s.renderer.Render(ctx, RenderData{Test: t, Patient: p})
		if err != nil {
			return err
		}

		rep = &Report{
			ID:        uuid.New(),
			TestID:    t.ID,
			Source:    SourceGenerated,
			CreatedBy: principal.ID,
		}
		rep.FilePath = path.Join(t.Code, rep.ID.String()+".pdf")
		if err := s.store.Write(rep.FilePath, data); err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
		written = rep.FilePath

		abs, err := s.store.Abs(rep.FilePath)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
		digest, err := integrity.HashFile(abs)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
		rep.Digest = digest

		if err := s.reports.Create(ctx, rep); err != nil {
			return err
		}
		return s.advance(ctx, t, labtest.StatusReported)
	})
	if err != nil {
		if written != "" {
			s.cleanup(written)
		}
		return nil, err
	}
	return rep, nil
}

// UploadExternal takes custody of a report produced outside the portal.
// A second upload for the same test replaces the artifact, the digest and
// the creation timestamp, and clears any signed copy, since the old
// signature no longer covers the stored bytes.
func (s *Service) UploadExternal(ctx context.Context, principal auth.Principal, testID uuid.UUID, filename string, data []byte) (*Report, error) {
	ext, err := artifact.CheckExtension(filename, artifact.DocumentExtensions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := artifact.SniffDocument(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var rep *Report
	var written string
	var stale []string

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := s.tests.GetForUpdate(ctx, testID)
		if err != nil {
			return mapTestErr(err)
		}
		if t.Status != labtest.StatusExecuted && t.Status != labtest.StatusReported {
			return fmt.Errorf("%w: cannot upload report for test in state %s", ErrInvalidState, t.Status)
		}

		p, err := s.patients.GetByID(ctx, t.PatientID)
		if err != nil {
			return err
		}
		stored := data
		if sealedCategories[t.Category] {
			stored, err = seal.Wrap(data, p.FiscalCode)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrStorage, err)
			}
		}

		isNew := false
		existing, err := s.reports.GetByTestID(ctx, testID)
		switch {
		case err == nil:
			rep = existing
			if rep.FilePath != "" {
				stale = append(stale, rep.FilePath)
			}
			if rep.SignedPath != nil {
				stale = append(stale, *rep.SignedPath)
			}
			// Custody restarts from the replacement: new author, new
			// creation time, so the retention window counts from now.
			rep.CreatedBy = principal.ID
			rep.CreatedAt = time.Now()
		case errors.Is(err, ErrNotFound):
			isNew = true
			rep = &Report{ID: uuid.New(), TestID: t.ID, CreatedBy: principal.ID}
		default:
			return err
		}

		rep.Source = SourceExternal
		rep.FilePath = path.Join(t.Code, rep.ID.String()+ext)
		rep.SignedPath = nil
		rep.SignedAt = nil

		if err := s.store.Write(rep.FilePath, stored); err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
		written = rep.FilePath
		rep.Digest = integrity.Hash(stored)

		if isNew {
			if err := s.reports.Create(ctx, rep); err != nil {
				return err
			}
		} else if err := s.reports.Update(ctx, rep); err != nil {
			return err
		}

		if t.Status == labtest.StatusExecuted {
			return s.advance(ctx, t, labtest.StatusReported)
		}
		return nil
	})
	if err != nil {
		if written != "" {
			s.cleanup(written)
		}
		return nil, err
	}
	for _, p := range stale {
		if p != rep.FilePath {
			s.cleanup(p)
		}
	}
	return rep, nil
}

// AttachSignedCopy stores the digitally signed rendition of a report and
// moves the owning test to signed. The signed bytes are not checked against
// the unsigned digest; custody trusts the uploading biologist here.
func (s *Service) AttachSignedCopy(ctx context.Context, principal auth.Principal, reportID uuid.UUID, filename string, data []byte) (*Report, error) {
	ext, err := artifact.CheckExtension(filename, artifact.SignedExtensions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := artifact.SniffDocument(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var rep *Report
	var written string

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		rep, err = s.reports.GetByID(ctx, reportID)
		if err != nil {
			return err
		}
		t, err := s.tests.GetForUpdate(ctx, rep.TestID)
		if err != nil {
			return mapTestErr(err)
		}
		if !labtest.CanTransition(t.Status, labtest.StatusSigned) {
			return fmt.Errorf("%w: cannot sign report for test in state %s", ErrInvalidState, t.Status)
		}

		signedPath := path.Join(t.Code, rep.ID.String()+"_signed"+ext)
		if err := s.store.Write(signedPath, data); err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
		written = signedPath

		now := time.Now()
		rep.SignedPath = &signedPath
		rep.SignedAt = &now
		if err := s.reports.Update(ctx, rep); err != nil {
			return err
		}
		return s.advance(ctx, t, labtest.StatusSigned)
	})
	if err != nil {
		if written != "" {
			s.cleanup(written)
		}
		return nil, err
	}
	return rep, nil
}

// Delete removes a report and reverts its test to executed so the report
// can be produced again. Artifact removal is best effort; a leftover file
// without a row pointing at it is harmless.
func (s *Service) Delete(ctx context.Context, principal auth.Principal, reportID uuid.UUID) error {
	var paths []string

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		rep, err := s.reports.GetByID(ctx, reportID)
		if err != nil {
			return err
		}
		t, err := s.tests.GetForUpdate(ctx, rep.TestID)
		if err != nil {
			return mapTestErr(err)
		}
		if !labtest.CanTransition(t.Status, labtest.StatusExecuted) {
			return fmt.Errorf("%w: cannot delete report for test in state %s", ErrInvalidState, t.Status)
		}

		paths = append(paths, rep.FilePath)
		if rep.SignedPath != nil {
			paths = append(paths, *rep.SignedPath)
		}
		if err := s.reports.Delete(ctx, reportID); err != nil {
			return err
		}

		t.Status = labtest.StatusExecuted
		t.ReportedAt = nil
		return s.tests.Update(ctx, t)
	})
	if err != nil {
		return err
	}
	for _, p := range paths {
		s.cleanup(p)
	}
	return nil
}

// VerifyIntegrity recomputes the digest of the unsigned artifact at rest
// and compares it with the digest recorded at custody time.
func (s *Service) VerifyIntegrity(ctx context.Context, reportID uuid.UUID) (bool, error) {
	rep, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return false, err
	}
	abs, err := s.store.Abs(rep.FilePath)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	ok, err := integrity.Verify(abs, rep.Digest)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return ok, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Report, error) {
	return s.reports.GetByID(ctx, id)
}

func (s *Service) GetByTestID(ctx context.Context, testID uuid.UUID) (*Report, error) {
	return s.reports.GetByTestID(ctx, testID)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Report, int, error) {
	return s.reports.List(ctx, limit, offset)
}

func (s *Service) advance(ctx context.Context, t *labtest.Test, to labtest.Status) error {
	if !labtest.CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, t.Status, to)
	}
	t.Status = to
	if to == labtest.StatusReported {
		now := time.Now()
		t.ReportedAt = &now
	}
	return s.tests.Update(ctx, t)
}

func (s *Service) cleanup(relPath string) {
	if err := s.store.Remove(relPath); err != nil && !errors.Is(err, artifact.ErrNotFound) {
		s.log.Warn().Err(err).Str("path", relPath).Msg("artifact cleanup failed")
	}
}

func mapTestErr(err error) error {
	if errors.Is(err, labtest.ErrNotFound) {
		return fmt.Errorf("%w: test", ErrNotFound)
	}
	return err
}
