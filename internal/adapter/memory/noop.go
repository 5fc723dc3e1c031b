package memory

import (
	"context"

	"adjutant/internal/domain"
)

// NoopArchive discards everything. Used when the archive is disabled so
// callers never need a nil check.
type NoopArchive struct{}

var _ domain.Archive = (*NoopArchive)(nil)

func NewNoopArchive() *NoopArchive { return &NoopArchive{} }

func (n *NoopArchive) Append(context.Context, domain.ArchiveEntry) (int64, error) { return 0, nil }

func (n *NoopArchive) Search(context.Context, []string, int) ([]domain.ArchiveEntry, error) {
	return nil, nil
}

func (n *NoopArchive) Recent(context.Context, string, int) ([]domain.ArchiveEntry, error) {
	return nil, nil
}

func (n *NoopArchive) Close() error { return nil }
