package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flemzord/devwarm/internal/gitprep"
	"github.com/flemzord/devwarm/pkg/job"
)

// LastCheckout implements gitprep.Ledger.
func (s *Store) LastCheckout(ctx context.Context, repo string) (gitprep.Checkout, bool, error) {
	var (
		c       gitprep.Checkout
		depth   int
		refs    string
		fetched string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT repo, depth, refspec, remote, refs, fetched_at
		FROM git_checkouts WHERE repo = ?`,
		repo,
	).Scan(&c.Repo, &depth, &c.Policy.RefSpec, &c.Policy.Remote, &refs, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return gitprep.Checkout{}, false, nil
	}
	if err != nil {
		return gitprep.Checkout{}, false, fmt.Errorf("sqlite: last checkout of %s: %w", repo, err)
	}

	c.Policy.Depth = job.Depth(depth)
	if err := json.Unmarshal([]byte(refs), &c.Refs); err != nil {
		return gitprep.Checkout{}, false, fmt.Errorf("sqlite: decode refs of %s: %w", repo, err)
	}
	if c.FetchedAt, err = parseTime(fetched); err != nil {
		return gitprep.Checkout{}, false, err
	}
	return c, true, nil
}

// RecordCheckout implements gitprep.Ledger.
func (s *Store) RecordCheckout(ctx context.Context, c gitprep.Checkout) error {
	refs := c.Refs
	if refs == nil {
		refs = []string{}
	}
	raw, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("sqlite: encode refs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO git_checkouts (repo, depth, refspec, remote, refs, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo) DO UPDATE SET
			depth = excluded.depth,
			refspec = excluded.refspec,
			remote = excluded.remote,
			refs = excluded.refs,
			fetched_at = excluded.fetched_at`,
		c.Repo, int(c.Policy.Depth), c.Policy.RefSpec, c.Policy.Remote, string(raw), formatTime(c.FetchedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: record checkout of %s: %w", c.Repo, err)
	}
	return nil
}
