package distribution

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/labportal/portal/internal/domain/labtest"
	"github.com/labportal/portal/internal/domain/patient"
	"github.com/labportal/portal/internal/platform/artifact"
	"github.com/labportal/portal/internal/platform/integrity"
	"github.com/labportal/portal/internal/platform/seal"
)

// attemptCounter tracks failed credential attempts per (IP, test code).
// In-process only; a restart forgives everyone.
type attemptCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newAttemptCounter() *attemptCounter {
	return &attemptCounter{counts: make(map[string]int)}
}

func (a *attemptCounter) fail(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts[key]++
	return a.counts[key]
}

func (a *attemptCounter) locked(key string, max int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[key] >= max
}

func (a *attemptCounter) reset(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.counts, key)
}

type Service struct {
	repo        Repository
	store       *artifact.Store
	retention   time.Duration
	maxAttempts int
	attempts    *attemptCounter
	log         zerolog.Logger
}

func NewService(repo Repository, store *artifact.Store, retentionDays, maxAttempts int, log zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		store:       store,
		retention:   time.Duration(retentionDays) * 24 * time.Hour,
		maxAttempts: maxAttempts,
		attempts:    newAttemptCounter(),
		log:         log,
	}
}

type DownloadRequest struct {
	TestCode   string
	FiscalCode string
	IP         string
	UserAgent  string
}

type DownloadResult struct {
	Filename string
	Bytes    []byte
}

// Download authenticates a patient by the exact (test code, fiscal code)
// pair and returns the report wrapped in a fresh fiscal-code-keyed
// envelope. Any credential mismatch yields the same ErrInvalidCredentials
// regardless of which side was wrong. Every attempt is audited; the
// submitted fiscal code is stored in clear only when the download is
// actually delivered.
func (s *Service) Download(ctx context.Context, req DownloadRequest) (*DownloadResult, error) {
	testCode := strings.TrimSpace(req.TestCode)
	fiscalCode := patient.NormalizeFiscalCode(req.FiscalCode)
	key := req.IP + "|" + testCode

	if testCode == "" || fiscalCode == "" {
		s.audit(ctx, testCode, fiscalCode, OutcomeInvalidCredentials, req.IP, req.UserAgent, false)
		return nil, ErrInvalidCredentials
	}
	if s.attempts.locked(key, s.maxAttempts) {
		s.audit(ctx, testCode, fiscalCode, OutcomeLocked, req.IP, req.UserAgent, false)
		return nil, ErrInvalidCredentials
	}

	d, err := s.repo.MatchCredentials(ctx, testCode, fiscalCode)
	if errors.Is(err, ErrInvalidCredentials) {
		s.attempts.fail(key)
		s.audit(ctx, testCode, fiscalCode, OutcomeInvalidCredentials, req.IP, req.UserAgent, false)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		// Infrastructure trouble, not a bad guess. No strike, no
		// credential-failure audit row.
		s.log.Error().Err(err).Str("test_code", testCode).Msg("credential lookup failed")
		return nil, fmt.Errorf("credential lookup: %w", err)
	}

	if d.Report == nil || !reported(d.Test.Status) {
		s.audit(ctx, testCode, fiscalCode, OutcomeNotAvailable, req.IP, req.UserAgent, false)
		return nil, ErrNotAvailable
	}
	if time.Since(d.Report.CreatedAt) > s.retention {
		s.audit(ctx, testCode, fiscalCode, OutcomeExpired, req.IP, req.UserAgent, false)
		return nil, ErrExpired
	}

	relPath := d.Report.FilePath
	if d.Report.Signed() {
		relPath = *d.Report.SignedPath
	}
	data, err := s.store.Read(relPath)
	if err != nil {
		s.log.Error().Err(err).Str("test_code", testCode).Msg("report artifact unreadable")
		s.audit(ctx, testCode, fiscalCode, OutcomeNotAvailable, req.IP, req.UserAgent, false)
		return nil, ErrNotAvailable
	}

	wrapped, err := seal.Wrap(data, fiscalCode)
	if err != nil {
		return nil, fmt.Errorf("seal download: %w", err)
	}

	s.attempts.reset(key)
	s.audit(ctx, testCode, fiscalCode, OutcomeDelivered, req.IP, req.UserAgent, true)

	return &DownloadResult{
		Filename: fmt.Sprintf("%s_%s.pdf.enc", testCode, sanitizeName(d.Patient.FamilyName)),
		Bytes:    wrapped,
	}, nil
}

type VerifyRequest struct {
	TestCode  string
	Digest    string
	IP        string
	UserAgent string
}

// Verify confirms that a digest belongs to the report of a test without
// revealing who the report is about. It needs no fiscal code and is
// independent of the download flow.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*VerifySummary, error) {
	testCode := strings.TrimSpace(req.TestCode)
	digest := strings.ToLower(strings.TrimSpace(req.Digest))

	if testCode == "" || !integrity.ValidDigest(digest) {
		s.audit(ctx, testCode, "", OutcomeVerifyNotFound, req.IP, req.UserAgent, false)
		return nil, ErrVerifyNotFound
	}

	d, err := s.repo.FindByDigest(ctx, testCode, digest)
	if errors.Is(err, ErrVerifyNotFound) {
		s.audit(ctx, testCode, "", OutcomeVerifyNotFound, req.IP, req.UserAgent, false)
		return nil, ErrVerifyNotFound
	}
	if err != nil {
		s.log.Error().Err(err).Str("test_code", testCode).Msg("digest lookup failed")
		return nil, fmt.Errorf("digest lookup: %w", err)
	}

	s.audit(ctx, testCode, "", OutcomeVerified, req.IP, req.UserAgent, false)

	summary := &VerifySummary{
		TestCode:    d.Test.Code,
		Category:    d.Test.Category,
		RequestedAt: d.Test.RequestedAt,
		ReportedAt:  d.Test.ReportedAt,
	}
	if d.Report != nil {
		summary.SignedAt = d.Report.SignedAt
	}
	if d.Test.AssignedName != nil {
		summary.BiologistName = *d.Test.AssignedName
	}
	return summary, nil
}

func (s *Service) ListAccess(ctx context.Context, limit, offset int) ([]*AccessLog, int, error) {
	return s.repo.ListAccess(ctx, limit, offset)
}

func (s *Service) audit(ctx context.Context, testCode, fiscalCode, outcome, ip, ua string, delivered bool) {
	entry := &AccessLog{TestCode: testCode, Outcome: outcome, IP: ip, UserAgent: ua}
	if fiscalCode != "" {
		if delivered {
			entry.FiscalCode = &fiscalCode
		} else {
			hint := fiscalHint(fiscalCode)
			entry.FiscalHint = &hint
		}
	}
	if err := s.repo.InsertAccess(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("outcome", outcome).Msg("access audit insert failed")
	}
}

func reported(status labtest.Status) bool {
	return status == labtest.StatusReported || status == labtest.StatusSigned
}

// fiscalHint is the first 12 hex chars of the SHA-256 of the submitted
// code. Enough to correlate repeated guesses, useless for recovery.
func fiscalHint(fiscalCode string) string {
	sum := sha256.Sum256([]byte(fiscalCode))
	return hex.EncodeToString(sum[:])[:12]
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "REFERTO"
	}
	return b.String()
}
