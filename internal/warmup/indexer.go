package warmup

import (
	"context"
	"time"

	"github.com/flemzord/devwarm/internal/gitprep"
	"github.com/flemzord/devwarm/pkg/job"
)

// Indexer is the external indexing platform. Implementations return *Error
// values with an indexer kind on failure.
type Indexer interface {
	BuildIndex(ctx context.Context, repo gitprep.RepoHandle, ide job.IDE) (IndexReport, error)
}

// IndexReport is what the indexing platform returns on success.
type IndexReport struct {
	Logs     string
	Duration time.Duration
}
