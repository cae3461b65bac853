package engine

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tidyarr/tidyarr/engine/arr"
	"github.com/tidyarr/tidyarr/naming"
	"github.com/tidyarr/tidyarr/store"
)

var (
	// ErrRenameTimeout means the service did not apply the move within the
	// configured poll window. The item is recorded failed and retried on a
	// later run.
	ErrRenameTimeout = errors.New("rename did not complete in time")
	// ErrVerificationFailed means the move was applied but the service no
	// longer detects the item's files at the new path.
	ErrVerificationFailed = errors.New("service lost track of the files after the rename")
)

// renameAndVerify sends one rename request, polls until the service has
// applied the move, and verifies the files are still detected. The returned
// status is what gets recorded; a context.Canceled error means the outcome
// must be abandoned instead.
func (e *Engine) renameAndVerify(ctx context.Context, svc arr.Renamer, item arr.MediaItem, plan naming.Plan) (store.RenameStatus, error) {
	kind := string(svc.Kind())

	job, err := svc.RequestRename(ctx, item, plan.TargetPath)
	if err != nil {
		if errors.Is(err, arr.ErrRenameRejected) {
			log.Warn("Service rejected the rename", "service", kind, "item", item.Title, "target", plan.TargetPath)
		} else {
			log.Error("Failed to request rename", "service", kind, "item", item.Title, "error", err)
		}
		return store.RenameStatusFailed, ctxErr(ctx, err)
	}

	if err := e.pollRename(ctx, svc, job); err != nil {
		log.Error("Rename did not complete", "service", kind, "item", item.Title, "target", plan.TargetPath, "error", err)
		return store.RenameStatusFailed, ctxErr(ctx, err)
	}

	if err := e.verifyItem(ctx, svc, item); err != nil {
		// The folder moved but the service flags the files as missing. Record
		// failed, never done, so the next run retries instead of treating the
		// item as resolved.
		log.Error("Rename verification failed", "service", kind, "item", item.Title, "target", plan.TargetPath, "error", err)
		return store.RenameStatusFailed, ctxErr(ctx, err)
	}

	log.Info("Folder renamed and verified", "service", kind, "item", item.Title, "path", plan.TargetPath)
	return store.RenameStatusDone, nil
}

// pollRename polls the rename job with a fixed delay until it reaches a
// terminal state or the attempt budget runs out.
func (e *Engine) pollRename(ctx context.Context, svc arr.Renamer, job arr.RenameJob) error {
	for attempt := 1; attempt <= e.cfg.PollAttempts; attempt++ {
		state, err := svc.PollRename(ctx, job)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Debug("Rename status poll failed", "service", svc.Kind(), "attempt", attempt, "error", err)
		}

		switch state {
		case arr.RenameStateSucceeded:
			return nil
		case arr.RenameStateFailed:
			if err != nil {
				return err
			}
			return ErrRenameTimeout
		}

		if attempt < e.cfg.PollAttempts {
			if err := sleepCtx(ctx, e.cfg.PollInterval); err != nil {
				return err
			}
		}
	}
	return ErrRenameTimeout
}

// verifyItem triggers a rescan and re-fetches the item until the service
// reports its files as present again.
func (e *Engine) verifyItem(ctx context.Context, svc arr.Renamer, item arr.MediaItem) error {
	if err := svc.RefreshItem(ctx, item); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("Failed to trigger rescan, verifying anyway", "service", svc.Kind(), "item", item.Title, "error", err)
	}

	for attempt := 1; attempt <= e.cfg.VerifyAttempts; attempt++ {
		fresh, err := svc.GetItem(ctx, item.ID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Debug("Verification fetch failed", "service", svc.Kind(), "attempt", attempt, "error", err)
		} else if fresh.HasFile {
			return nil
		}

		if attempt < e.cfg.VerifyAttempts {
			if err := sleepCtx(ctx, e.cfg.PollInterval); err != nil {
				return err
			}
		}
	}
	return ErrVerificationFailed
}

// sleepCtx waits for the given duration unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ctxErr prefers the context's cancellation error so callers can tell an
// abandoned item from a failed one.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
