package backlog

import (
	"context"
	"fmt"

	"storyloop/internal/store"
	"storyloop/internal/story"
)

// Result reports what an import did.
type Result struct {
	// Added lists ids created as pending stories, in manifest order.
	Added []string

	// Skipped lists ids that already existed and were left untouched.
	Skipped []string
}

// Import creates a pending story for each manifest entry whose id is not
// already in the store. Existing stories are never overwritten.
func Import(ctx context.Context, st store.Store, m *Manifest) (Result, error) {
	var res Result
	err := store.Update(ctx, st, func(snap *store.Snapshot) error {
		res = Result{}
		for _, e := range m.Entries {
			if _, exists := snap.Stories.Get(e.ID); exists {
				res.Skipped = append(res.Skipped, e.ID)
				continue
			}

			s := story.New(e.ID, e.Priority)
			s.Title = e.Title
			if e.IssueNumber != nil {
				n := *e.IssueNumber
				s.IssueNumber = &n
			}
			if err := snap.Stories.Add(s); err != nil {
				return fmt.Errorf("import %s: %w", e.ID, err)
			}
			res.Added = append(res.Added, e.ID)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}
