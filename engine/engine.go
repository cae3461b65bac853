// Package engine drives one folder-renaming run: list the catalog items per
// enabled service, plan the folder name each service's own naming template
// would produce, request the rename, verify the service still tracks the
// files, and record the outcome in the rename store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/tidyarr/tidyarr/cache"
	"github.com/tidyarr/tidyarr/config"
	"github.com/tidyarr/tidyarr/engine/arr"
	"github.com/tidyarr/tidyarr/engine/arr/radarr"
	"github.com/tidyarr/tidyarr/engine/arr/sonarr"
	"github.com/tidyarr/tidyarr/engine/jellyfin"
	"github.com/tidyarr/tidyarr/naming"
	"github.com/tidyarr/tidyarr/store"
)

// libraryRefresher is the downstream media player surface the engine touches.
type libraryRefresher interface {
	RefreshLibraries(ctx context.Context) error
}

// Engine orchestrates the rename workflow across the enabled services.
type Engine struct {
	cfg   *config.Config
	store *store.Store
	// services are processed in this fixed order, sharing one work budget:
	// radarr first, then sonarr. Deterministic under tight limits.
	services []arr.Renamer
	jellyfin libraryRefresher
}

// RunResult summarizes one run. It is logged and stored, never acted upon.
type RunResult struct {
	RunID      string
	Considered int
	Planned    int
	Renamed    int
	Verified   int
	Failed     int
	Skipped    int
}

// ErrNoServiceAvailable is returned when no enabled service could be listed.
var ErrNoServiceAvailable = errors.New("no enabled service could be listed")

// New creates a new Engine instance from the configuration.
func New(cfg *config.Config, st *store.Store) (*Engine, error) {
	caches := cache.NewEngineCache(cfg.Cache)

	services := make([]arr.Renamer, 0, 2)
	if cfg.Radarr != nil && cfg.Radarr.Enabled {
		client := radarr.NewClient(cfg.Radarr)
		services = append(services, radarr.New(client, cfg.Radarr, caches.RadarrItemsCache, caches.RadarrFormatCache))
	}
	if cfg.Sonarr != nil && cfg.Sonarr.Enabled {
		client := sonarr.NewClient(cfg.Sonarr)
		services = append(services, sonarr.New(client, cfg.Sonarr, caches.SonarrItemsCache, caches.SonarrFormatCache))
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("no service enabled")
	}

	return &Engine{
		cfg:      cfg,
		store:    st,
		services: services,
		jellyfin: jellyfin.New(cfg.Jellyfin),
	}, nil
}

// RunOnce performs a single run. Per-item failures are recorded and logged
// but never abort the run; the returned error is run-fatal only.
func (e *Engine) RunOnce(ctx context.Context) (*RunResult, error) {
	res := &RunResult{RunID: uuid.NewString()}

	// Run bookkeeping is never interrupted by cancellation; a cancelled run
	// still leaves a completed record behind.
	if err := e.store.StartRun(context.WithoutCancel(ctx), res.RunID, e.cfg.DryRun); err != nil {
		return nil, err
	}

	log.Info("Starting run", "run_id", res.RunID, "dry_run", e.cfg.DryRun, "work_limit", e.cfg.WorkLimit)

	budget := newBudget(e.cfg.WorkLimit)
	listed := 0
	for _, svc := range e.services {
		if ctx.Err() != nil {
			break
		}
		ok, err := e.processService(ctx, svc, res, budget)
		if err != nil {
			// Cancellation mid-service; the current item's outcome is
			// abandoned, everything committed so far stays recorded.
			break
		}
		if ok {
			listed++
		}
	}

	cancelled := ctx.Err() != nil

	if listed == 0 && !cancelled {
		e.completeRun(res, store.RunStatusFailed, ErrNoServiceAvailable)
		return res, ErrNoServiceAvailable
	}

	// Downstream refresh happens once per run, after all services, unless the
	// run was a dry run or got cancelled.
	if !e.cfg.DryRun && !cancelled {
		if err := e.jellyfin.RefreshLibraries(context.WithoutCancel(ctx)); err != nil {
			log.Error("Failed to refresh Jellyfin libraries", "error", err)
		}
	}

	status := store.RunStatusCompleted
	if cancelled {
		status = store.RunStatusCancelled
	}
	e.completeRun(res, status, nil)

	log.Info("Run finished",
		"run_id", res.RunID,
		"status", status,
		"considered", res.Considered,
		"planned", res.Planned,
		"renamed", res.Renamed,
		"verified", res.Verified,
		"failed", res.Failed,
		"skipped", res.Skipped,
	)
	return res, nil
}

// processService runs the per-item state machine for one service. It returns
// whether listing succeeded, and an error only on cancellation.
func (e *Engine) processService(ctx context.Context, svc arr.Renamer, res *RunResult, budget *budget) (bool, error) {
	kind := string(svc.Kind())

	format, err := svc.FolderFormat(ctx)
	if err != nil {
		log.Error("Skipping service for this run", "service", kind, "error", err)
		return false, nil
	}

	items, err := svc.ListItems(ctx)
	if err != nil {
		if errors.Is(err, arr.ErrUnauthorized) {
			log.Error("Service rejected the API key, skipping service for this run", "service", kind)
		} else {
			log.Error("Failed to list items, skipping service for this run", "service", kind, "error", err)
		}
		return false, nil
	}

	log.Info("Processing service", "service", kind, "items", len(items), "folder_format", format)

	for _, item := range items {
		select {
		case <-ctx.Done():
			log.Warn("Run cancelled, stopping", "service", kind)
			return true, ctx.Err()
		default:
		}

		res.Considered++
		currentPath := strings.TrimRight(item.Path, "/")

		if e.store.IsUpToDate(ctx, kind, item.ID, currentPath) {
			log.Debug("Item already confirmed correct, skipping", "service", kind, "item", item.Title)
			res.Skipped++
			continue
		}

		plan, err := naming.PlanRename(item, format)
		if err != nil {
			// Missing identifiers: don't cache, so the item is retried once
			// the service has the metadata.
			log.Warn("Cannot plan rename, missing data", "service", kind, "item", item.Title, "error", err)
			res.Skipped++
			continue
		}
		res.Planned++

		if plan.NoOp {
			res.Skipped++
			if e.cfg.DryRun {
				continue
			}
			// Record the confirmed path so future runs short-circuit without
			// recomputing the plan.
			e.record(ctx, kind, item, plan.TargetPath, store.RenameStatusDone, res.RunID)
			continue
		}

		if e.cfg.DryRun {
			log.Info("Dry run: would rename folder", "service", kind, "item", item.Title, "from", plan.CurrentPath, "to", plan.TargetPath)
			res.Skipped++
			continue
		}

		// The budget counts rename requests actually sent; skipped and no-op
		// items are free.
		if !budget.take() {
			log.Info("Work limit reached, stopping", "service", kind, "limit", e.cfg.WorkLimit)
			break
		}

		status, err := e.renameAndVerify(ctx, svc, item, plan)
		if err != nil && ctx.Err() != nil {
			// Abandon the in-flight item without recording an outcome.
			return true, err
		}

		e.record(ctx, kind, item, plan.TargetPath, status, res.RunID)
		switch status {
		case store.RenameStatusDone:
			res.Renamed++
			res.Verified++
		default:
			res.Renamed++
			res.Failed++
		}
	}

	return true, nil
}

// record commits one item's outcome before the next item is considered.
func (e *Engine) record(ctx context.Context, service string, item arr.MediaItem, path string, status store.RenameStatus, runID string) {
	err := e.store.UpsertRename(ctx, store.RenameRecord{
		Service: service,
		ItemID:  item.ID,
		Title:   item.Title,
		Path:    path,
		Status:  status,
		RunID:   runID,
	})
	if err != nil {
		log.Error("Failed to record rename outcome", "service", service, "item", item.Title, "error", err)
	}
}

func (e *Engine) completeRun(res *RunResult, status store.RunStatus, runErr error) {
	rec := store.RunRecord{
		ID:         res.RunID,
		DryRun:     e.cfg.DryRun,
		Status:     status,
		Considered: res.Considered,
		Planned:    res.Planned,
		Renamed:    res.Renamed,
		Verified:   res.Verified,
		Failed:     res.Failed,
		Skipped:    res.Skipped,
	}
	if runErr != nil {
		msg := runErr.Error()
		rec.ErrorMessage = &msg
	}
	if err := e.store.CompleteRun(context.Background(), rec); err != nil {
		log.Error("Failed to record run completion", "run_id", res.RunID, "error", err)
	}
}

// budget is the per-run cap on rename requests, shared across services.
// A limit of 0 means unlimited.
type budget struct {
	limit int
	used  int
}

func newBudget(limit int) *budget {
	return &budget{limit: limit}
}

func (b *budget) take() bool {
	if b.limit > 0 && b.used >= b.limit {
		return false
	}
	b.used++
	return true
}
