package distribution

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labportal/portal/internal/domain/labtest"
	"github.com/labportal/portal/internal/domain/patient"
	"github.com/labportal/portal/internal/domain/report"
	"github.com/labportal/portal/internal/platform/artifact"
	"github.com/labportal/portal/internal/platform/integrity"
	"github.com/labportal/portal/internal/platform/seal"
)

const (
	testCode   = "LAB-2026-000123"
	fiscalCode = "RSSMRA85T10A562S"
	reportBody = "%PDF-1.4 il referto"
	signedBody = "%PDF-1.4 il referto firmato"
)

type mockRepo struct {
	delivery *Delivery
	entries  []*AccessLog
	queryErr error
}

func (m *mockRepo) MatchCredentials(_ context.Context, code, fiscal string) (*Delivery, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if m.delivery == nil || m.delivery.Test.Code != code || m.delivery.Patient.FiscalCode != fiscal {
		return nil, ErrInvalidCredentials
	}
	cp := *m.delivery
	return &cp, nil
}

func (m *mockRepo) FindByDigest(_ context.Context, code, digest string) (*Delivery, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if m.delivery == nil || m.delivery.Test.Code != code ||
		m.delivery.Report == nil || !integrity.Equal(m.delivery.Report.Digest, digest) {
		return nil, ErrVerifyNotFound
	}
	cp := *m.delivery
	return &cp, nil
}

func (m *mockRepo) InsertAccess(_ context.Context, entry *AccessLog) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockRepo) ListAccess(_ context.Context, _, _ int) ([]*AccessLog, int, error) {
	return m.entries, len(m.entries), nil
}

func (m *mockRepo) lastEntry(t *testing.T) *AccessLog {
	t.Helper()
	if len(m.entries) == 0 {
		t.Fatal("no audit entry recorded")
	}
	return m.entries[len(m.entries)-1]
}

type fixture struct {
	svc  *Service
	repo *mockRepo
}

func newFixture(t *testing.T, reportAge time.Duration, signed bool) *fixture {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.Write(testCode+"/report.pdf", []byte(reportBody)); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	biologist := "Dr. Bianchi"
	reportedAt := time.Now().Add(-reportAge)
	rep := &report.Report{
		ID:        uuid.New(),
		Source:    report.SourceGenerated,
		FilePath:  testCode + "/report.pdf",
		Digest:    integrity.Hash([]byte(reportBody)),
		CreatedAt: time.Now().Add(-reportAge),
	}
	status := labtest.StatusReported
	if signed {
		if err := store.Write(testCode+"/report_signed.p7m", []byte(signedBody)); err != nil {
			t.Fatalf("write signed artifact: %v", err)
		}
		signedPath := testCode + "/report_signed.p7m"
		now := time.Now()
		rep.SignedPath = &signedPath
		rep.SignedAt = &now
		status = labtest.StatusSigned
	}

	repo := &mockRepo{delivery: &Delivery{
		Test: labtest.Test{
			ID:           uuid.New(),
			Code:         testCode,
			Category:     "microbiota",
			Status:       status,
			AssignedName: &biologist,
			RequestedAt:  time.Now().Add(-reportAge - 72*time.Hour),
			ReportedAt:   &reportedAt,
		},
		Patient: patient.Patient{
			ID:         uuid.New(),
			GivenName:  "Maria",
			FamilyName: "Rossi",
			FiscalCode: fiscalCode,
		},
		Report: rep,
	}}
	return &fixture{
		svc:  NewService(repo, store, 45, 5, zerolog.Nop()),
		repo: repo,
	}
}

func TestDownload(t *testing.T) {
	f := newFixture(t, time.Hour, false)

	res, err := f.svc.Download(context.Background(), DownloadRequest{
		TestCode: testCode, FiscalCode: fiscalCode, IP: "203.0.113.9", UserAgent: "curl/8.5",
	})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if res.Filename != testCode+"_ROSSI.pdf.enc" {
		t.Errorf("filename = %q", res.Filename)
	}
	if string(res.Bytes) == reportBody {
		t.Fatal("artifact delivered without envelope")
	}
	plain, err := seal.Unwrap(res.Bytes, fiscalCode)
	if err != nil {
		t.Fatalf("unwrap with fiscal code: %v", err)
	}
	if string(plain) != reportBody {
		t.Error("unwrapped bytes differ from artifact")
	}

	entry := f.repo.lastEntry(t)
	if entry.Outcome != OutcomeDelivered {
		t.Errorf("outcome = %s", entry.Outcome)
	}
	if entry.FiscalCode == nil || *entry.FiscalCode != fiscalCode {
		t.Error("delivered row must carry the cleartext fiscal code")
	}
	if entry.UserAgent != "curl/8.5" {
		t.Errorf("user agent = %q", entry.UserAgent)
	}
}

func TestDownloadPrefersSignedArtifact(t *testing.T) {
	f := newFixture(t, time.Hour, true)

	res, err := f.svc.Download(context.Background(), DownloadRequest{
		TestCode: testCode, FiscalCode: fiscalCode, IP: "203.0.113.9",
	})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	plain, err := seal.Unwrap(res.Bytes, fiscalCode)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if string(plain) != signedBody {
		t.Error("signed artifact not preferred")
	}
}

func TestDownloadFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t, time.Hour, false)

	_, errWrongCode := f.svc.Download(context.Background(), DownloadRequest{
		TestCode: "LAB-2026-999999", FiscalCode: fiscalCode, IP: "203.0.113.9",
	})
	_, errWrongFiscal := f.svc.Download(context.Background(), DownloadRequest{
		TestCode: testCode, FiscalCode: "VRDGPP80A01H501X", IP: "203.0.113.9",
	})
	if !errors.Is(errWrongCode, ErrInvalidCredentials) || !errors.Is(errWrongFiscal, ErrInvalidCredentials) {
		t.Fatalf("errors differ: %v vs %v", errWrongCode, errWrongFiscal)
	}
	if errWrongCode.Error() != errWrongFiscal.Error() {
		t.Error("failure messages must not reveal which credential was wrong")
	}

	for _, entry := range f.repo.entries {
		if entry.FiscalCode != nil {
			t.Error("failed attempt stored a cleartext fiscal code")
		}
		if entry.FiscalHint == nil || len(*entry.FiscalHint) != 12 || strings.Contains(*entry.FiscalHint, fiscalCode) {
			t.Error("failed attempt must store only a short hash hint")
		}
	}
}

func TestDownloadNotYetAvailable(t *testing.T) {
	f := newFixture(t, time.Hour, false)
	f.repo.delivery.Report = nil
	f.repo.delivery.Test.Status = labtest.StatusExecuted

	_, err := f.svc.Download(context.Background(), DownloadRequest{
		TestCode: testCode, FiscalCode: fiscalCode, IP: "203.0.113.9",
	})
	if !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("err = %v, want ErrNotAvailable", err)
	}
	if f.repo.lastEntry(t).Outcome != OutcomeNotAvailable {
		t.Errorf("outcome = %s", f.repo.lastEntry(t).Outcome)
	}
}

func TestDownloadRetentionBoundary(t *testing.T) {
	// A report 44 days old is still retrievable.
	f := newFixture(t, 44*24*time.Hour, false)
	if _, err := f.svc.Download(context.Background(), DownloadRequest{
		TestCode: testCode, FiscalCode: fiscalCode, IP: "203.0.113.9",
	}); err != nil {
		t.Fatalf("44 days: %v", err)
	}

	// At 46 days it is gone.
	f = newFixture(t, 46*24*time.Hour, false)
	_, err := f.svc.Download(context.Background(), DownloadRequest{
		TestCode: testCode, FiscalCode: fiscalCode, IP: "203.0.113.9",
	})
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("46 days: err = %v, want ErrExpired", err)
	}
	if f.repo.lastEntry(t).Outcome != OutcomeExpired {
		t.Errorf("outcome = %s", f.repo.lastEntry(t).Outcome)
	}
}

func TestDownloadLockout(t *testing.T) {
	f := newFixture(t, time.Hour, false)
	ip := "198.51.100.7"

	for i := 0; i < 5; i++ {
		_, err := f.svc.Download(context.Background(), DownloadRequest{
			TestCode: testCode, FiscalCode: "WRONG0000000000X", IP: ip,
		})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	// Even the right credentials are refused now, with the same error.
	_, err := f.svc.Download(context.Background(), DownloadRequest{
		TestCode: testCode, FiscalCode: fiscalCode, IP: ip,
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("locked attempt: err = %v, want ErrInvalidCredentials", err)
	}
	if f.repo.lastEntry(t).Outcome != OutcomeLocked {
		t.Errorf("outcome = %s, want %s", f.repo.lastEntry(t).Outcome, OutcomeLocked)
	}

	// Another address is unaffected.
	if _, err := f.svc.Download(context.Background(), DownloadRequest{
		TestCode: testCode, FiscalCode: fiscalCode, IP: "203.0.113.10",
	}); err != nil {
		t.Fatalf("other ip: %v", err)
	}
}

func TestDownloadRepositoryFailure(t *testing.T) {
	f := newFixture(t, time.Hour, false)
	ip := "198.51.100.9"
	f.repo.queryErr = errors.New("pg: connection refused")

	for i := 0; i < 6; i++ {
		_, err := f.svc.Download(context.Background(), DownloadRequest{
			TestCode: testCode, FiscalCode: fiscalCode, IP: ip,
		})
		if err == nil {
			t.Fatal("expected an error while the repository is down")
		}
		if errors.Is(err, ErrInvalidCredentials) {
			t.Fatal("infrastructure failure surfaced as bad credentials")
		}
	}
	if len(f.repo.entries) != 0 {
		t.Errorf("outage attempts audited as credential failures: %d rows", len(f.repo.entries))
	}

	// The outage left no strikes behind; the caller is not locked out.
	f.repo.queryErr = nil
	if _, err := f.svc.Download(context.Background(), DownloadRequest{
		TestCode: testCode, FiscalCode: fiscalCode, IP: ip,
	}); err != nil {
		t.Fatalf("download after outage: %v", err)
	}
}

func TestDownloadSuccessResetsCounter(t *testing.T) {
	f := newFixture(t, time.Hour, false)
	ip := "198.51.100.8"

	for i := 0; i < 4; i++ {
		f.svc.Download(context.Background(), DownloadRequest{ //nolint:errcheck
			TestCode: testCode, FiscalCode: "WRONG0000000000X", IP: ip,
		})
	}
	if _, err := f.svc.Download(context.Background(), DownloadRequest{
		TestCode: testCode, FiscalCode: fiscalCode, IP: ip,
	}); err != nil {
		t.Fatalf("download before lockout: %v", err)
	}

	// The slate is clean again.
	for i := 0; i < 4; i++ {
		f.svc.Download(context.Background(), DownloadRequest{ //nolint:errcheck
			TestCode: testCode, FiscalCode: "WRONG0000000000X", IP: ip,
		})
	}
	if _, err := f.svc.Download(context.Background(), DownloadRequest{
		TestCode: testCode, FiscalCode: fiscalCode, IP: ip,
	}); err != nil {
		t.Fatalf("download after reset: %v", err)
	}
}

func TestVerify(t *testing.T) {
	f := newFixture(t, time.Hour, false)

	summary, err := f.svc.Verify(context.Background(), VerifyRequest{
		TestCode: testCode,
		Digest:   integrity.Hash([]byte(reportBody)),
		IP:       "203.0.113.9",
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if summary.TestCode != testCode || summary.Category != "microbiota" {
		t.Errorf("summary = %+v", summary)
	}
	if summary.BiologistName != "Dr. Bianchi" {
		t.Errorf("biologist = %q", summary.BiologistName)
	}
	if f.repo.lastEntry(t).Outcome != OutcomeVerified {
		t.Errorf("outcome = %s", f.repo.lastEntry(t).Outcome)
	}
}

func TestVerifyUnknownDigest(t *testing.T) {
	f := newFixture(t, time.Hour, false)

	_, err := f.svc.Verify(context.Background(), VerifyRequest{
		TestCode: testCode,
		Digest:   strings.Repeat("ab", 32),
		IP:       "203.0.113.9",
	})
	if !errors.Is(err, ErrVerifyNotFound) {
		t.Fatalf("err = %v, want ErrVerifyNotFound", err)
	}
}

func TestVerifyRepositoryFailure(t *testing.T) {
	f := newFixture(t, time.Hour, false)
	f.repo.queryErr = errors.New("pg: connection refused")

	_, err := f.svc.Verify(context.Background(), VerifyRequest{
		TestCode: testCode,
		Digest:   f.repo.delivery.Report.Digest,
		IP:       "203.0.113.9",
	})
	if err == nil {
		t.Fatal("expected an error while the repository is down")
	}
	if errors.Is(err, ErrVerifyNotFound) {
		t.Fatal("infrastructure failure surfaced as not-found")
	}
	if len(f.repo.entries) != 0 {
		t.Errorf("outage attempt audited: %d rows", len(f.repo.entries))
	}
}

func TestVerifyMalformedDigest(t *testing.T) {
	f := newFixture(t, time.Hour, false)

	_, err := f.svc.Verify(context.Background(), VerifyRequest{
		TestCode: testCode, Digest: "not-a-digest", IP: "203.0.113.9",
	})
	if !errors.Is(err, ErrVerifyNotFound) {
		t.Fatalf("err = %v, want ErrVerifyNotFound", err)
	}
	if f.repo.lastEntry(t).Outcome != OutcomeVerifyNotFound {
		t.Errorf("outcome = %s", f.repo.lastEntry(t).Outcome)
	}
}
