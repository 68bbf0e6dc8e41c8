package project

import (
	"context"

	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"

	"github.com/Tonytonyy/onedev/internal/events"
	"github.com/Tonytonyy/onedev/internal/gitserver"
)

// refUpdated prunes protection rules invalidated by a ref deletion. It runs
// inside the transaction the notification was published from, so the rule
// rows and the triggering ref update commit or roll back together. Updates
// that are not deletions, and refs that are neither branches nor tags, are
// ignored.
func (m *Manager) refUpdated(ctx context.Context, ev events.RefUpdated) error {
	if ev.NewObjectID != plumbing.ZeroHash {
		return nil
	}

	p, err := m.store.LoadTx(ctx, ev.Tx, ev.ProjectID)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}

	if branch, ok := gitserver.RefToBranch(ev.RefName); ok {
		kept := p.BranchProtections[:0]
		for _, bp := range p.BranchProtections {
			if bp.OnBranchDelete(branch) {
				if err := m.store.DeleteBranchProtection(ctx, ev.Tx, bp.ID); err != nil {
					return err
				}
				m.log.Info("pruned branch protection",
					zap.Int64("project", p.ID), zap.String("branch", bp.Branch))
				continue
			}
			kept = append(kept, bp)
		}
		p.BranchProtections = kept
		return nil
	}

	if tag, ok := gitserver.RefToTag(ev.RefName); ok {
		kept := p.TagProtections[:0]
		for _, tp := range p.TagProtections {
			if tp.OnTagDelete(tag) {
				if err := m.store.DeleteTagProtection(ctx, ev.Tx, tp.ID); err != nil {
					return err
				}
				m.log.Info("pruned tag protection",
					zap.Int64("project", p.ID), zap.String("tag", tp.Tag))
				continue
			}
			kept = append(kept, tp)
		}
		p.TagProtections = kept
	}
	return nil
}
