package distribution

import "context"

type Repository interface {
	// MatchCredentials resolves the delivery for an exact (test code,
	// fiscal code) pair. ErrInvalidCredentials when either side mismatches.
	MatchCredentials(ctx context.Context, testCode, fiscalCode string) (*Delivery, error)
	// FindByDigest resolves the delivery whose unsigned artifact digest
	// matches. ErrVerifyNotFound when nothing matches.
	FindByDigest(ctx context.Context, testCode, digest string) (*Delivery, error)
	InsertAccess(ctx context.Context, entry *AccessLog) error
	ListAccess(ctx context.Context, limit, offset int) ([]*AccessLog, int, error)
}
