package sonarr

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	sonarrAPI "github.com/devopsarr/sonarr-go/sonarr"
	"github.com/samber/lo"
	"github.com/tidyarr/tidyarr/cache"
	"github.com/tidyarr/tidyarr/config"
	"github.com/tidyarr/tidyarr/engine/arr"
)

var _ arr.Renamer = (*Sonarr)(nil)

// Sonarr adapts the Sonarr API to the arr.Renamer contract.
type Sonarr struct {
	client      *sonarrAPI.APIClient
	cfg         *config.ArrConfig
	itemsCache  *cache.PrefixedCache[[]sonarrAPI.SeriesResource]
	formatCache *cache.PrefixedCache[string]
}

// NewClient creates a low-level Sonarr API client from the service config.
func NewClient(cfg *config.ArrConfig) *sonarrAPI.APIClient {
	scfg := sonarrAPI.NewConfiguration()

	url := cfg.URL

	if strings.HasPrefix(url, "http://") {
		scfg.Scheme = "http"
		url = strings.TrimPrefix(url, "http://")
	} else if strings.HasPrefix(url, "https://") {
		scfg.Scheme = "https"
		url = strings.TrimPrefix(url, "https://")
	}

	scfg.Host = url

	return sonarrAPI.NewAPIClient(scfg)
}

func sonarrAuthCtx(ctx context.Context, cfg *config.ArrConfig) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg == nil {
		return ctx
	}
	return context.WithValue(
		ctx,
		sonarrAPI.ContextAPIKeys,
		map[string]sonarrAPI.APIKey{
			"X-Api-Key": {Key: cfg.APIKey},
		},
	)
}

// New creates a new Sonarr adapter.
func New(client *sonarrAPI.APIClient, cfg *config.ArrConfig, itemsCache *cache.PrefixedCache[[]sonarrAPI.SeriesResource], formatCache *cache.PrefixedCache[string]) *Sonarr {
	return &Sonarr{
		client:      client,
		cfg:         cfg,
		itemsCache:  itemsCache,
		formatCache: formatCache,
	}
}

// Kind returns the service kind.
func (s *Sonarr) Kind() arr.Kind {
	return arr.KindSonarr
}

// ListItems returns all series that have at least one episode file on disk,
// in Sonarr's order.
func (s *Sonarr) ListItems(ctx context.Context) ([]arr.MediaItem, error) {
	series, err := s.getItems(ctx)
	if err != nil {
		return nil, err
	}

	withFiles := lo.Filter(series, func(sr sonarrAPI.SeriesResource, _ int) bool {
		return hasEpisodeFiles(sr)
	})

	items := lo.Map(withFiles, func(sr sonarrAPI.SeriesResource, _ int) arr.MediaItem {
		return mediaItem(sr)
	})

	log.Debug("Listed Sonarr series", "total", len(series), "withFiles", len(items))
	return items, nil
}

func (s *Sonarr) getItems(ctx context.Context) ([]sonarrAPI.SeriesResource, error) {
	cachedItems, err := s.itemsCache.Get(ctx, "all")
	if err != nil {
		log.Debug("Failed to get Sonarr items from cache, fetching from API", "error", err)
	}
	if len(cachedItems) != 0 {
		return cachedItems, nil
	}

	series, resp, err := s.client.SeriesAPI.ListSeries(sonarrAuthCtx(ctx, s.cfg)).IncludeSeasonImages(false).Execute()
	if err != nil {
		return nil, wrapAPIErr("failed to list Sonarr series", resp, err)
	}
	defer resp.Body.Close() //nolint: errcheck

	if err := s.itemsCache.Set(ctx, "all", series); err != nil {
		log.Warnf("Failed to cache Sonarr items: %v", err)
	}
	return series, nil
}

// GetItem returns a fresh snapshot of a single series, bypassing the cache.
// The file flag comes from the episode file list, which Sonarr keeps more
// current than the series statistics after a folder move.
func (s *Sonarr) GetItem(ctx context.Context, id int32) (arr.MediaItem, error) {
	series, resp, err := s.client.SeriesAPI.GetSeriesById(sonarrAuthCtx(ctx, s.cfg), id).Execute()
	if err != nil {
		return arr.MediaItem{}, wrapAPIErr(fmt.Sprintf("failed to get Sonarr series %d", id), resp, err)
	}
	defer resp.Body.Close() //nolint: errcheck

	item := mediaItem(*series)

	episodeFiles, resp, err := s.client.EpisodeFileAPI.ListEpisodeFile(sonarrAuthCtx(ctx, s.cfg)).
		SeriesId(id).
		Execute()
	if err != nil {
		return arr.MediaItem{}, wrapAPIErr(fmt.Sprintf("failed to list episode files of Sonarr series %d", id), resp, err)
	}
	defer resp.Body.Close() //nolint: errcheck

	item.HasFile = len(episodeFiles) > 0
	return item, nil
}

// FolderFormat returns the series folder naming template, either the override
// from the tidyarr config or Sonarr's own naming config.
func (s *Sonarr) FolderFormat(ctx context.Context) (string, error) {
	if s.cfg.FolderFormat != "" {
		return s.cfg.FolderFormat, nil
	}

	cached, err := s.formatCache.Get(ctx, "folder")
	if err == nil && cached != "" {
		return cached, nil
	}

	naming, resp, err := s.client.NamingConfigAPI.GetNamingConfig(sonarrAuthCtx(ctx, s.cfg)).Execute()
	if err != nil {
		return "", wrapAPIErr("failed to get Sonarr naming config", resp, err)
	}
	defer resp.Body.Close() //nolint: errcheck

	format := naming.GetSeriesFolderFormat()
	if format == "" {
		return "", fmt.Errorf("sonarr returned an empty series folder format")
	}

	if err := s.formatCache.Set(ctx, "folder", format); err != nil {
		log.Warnf("Failed to cache Sonarr folder format: %v", err)
	}
	return format, nil
}

// RequestRename updates the series path and asks Sonarr to move the files.
func (s *Sonarr) RequestRename(ctx context.Context, item arr.MediaItem, targetPath string) (arr.RenameJob, error) {
	series, resp, err := s.client.SeriesAPI.GetSeriesById(sonarrAuthCtx(ctx, s.cfg), item.ID).Execute()
	if err != nil {
		return arr.RenameJob{}, wrapAPIErr(fmt.Sprintf("failed to get Sonarr series %d", item.ID), resp, err)
	}
	defer resp.Body.Close() //nolint: errcheck

	series.SetPath(targetPath)

	_, resp, err = s.client.SeriesAPI.UpdateSeries(sonarrAuthCtx(ctx, s.cfg), fmt.Sprintf("%d", item.ID)).
		SeriesResource(*series).
		MoveFiles(true).
		Execute()
	if err != nil {
		return arr.RenameJob{}, wrapRenameErr(fmt.Sprintf("failed to update path of Sonarr series %s", item.Title), resp, err)
	}
	defer resp.Body.Close() //nolint: errcheck

	// The cached series list still carries the old path; drop it so the next
	// listing plans from fresh paths.
	if err := s.itemsCache.Delete(ctx, "all"); err != nil {
		log.Warnf("Failed to invalidate Sonarr items cache: %v", err)
	}

	log.Info("Requested Sonarr folder move", "series", item.Title, "target", targetPath)
	return arr.RenameJob{ItemID: item.ID, TargetPath: targetPath}, nil
}

// PollRename reports whether Sonarr has applied the move yet.
func (s *Sonarr) PollRename(ctx context.Context, job arr.RenameJob) (arr.RenameState, error) {
	series, resp, err := s.client.SeriesAPI.GetSeriesById(sonarrAuthCtx(ctx, s.cfg), job.ItemID).Execute()
	if err != nil {
		return arr.RenameStateFailed, wrapAPIErr(fmt.Sprintf("failed to get Sonarr series %d", job.ItemID), resp, err)
	}
	defer resp.Body.Close() //nolint: errcheck

	if strings.TrimRight(series.GetPath(), "/") == strings.TrimRight(job.TargetPath, "/") {
		return arr.RenameStateSucceeded, nil
	}
	return arr.RenameStatePending, nil
}

// RefreshItem triggers a rescan so Sonarr re-detects the series' files.
func (s *Sonarr) RefreshItem(ctx context.Context, item arr.MediaItem) error {
	command := sonarrAPI.NewCommandResource()
	command.SetName("RescanSeries")

	_, resp, err := s.client.CommandAPI.CreateCommand(sonarrAuthCtx(ctx, s.cfg)).
		CommandResource(*command).
		Execute()
	if err != nil {
		return wrapAPIErr(fmt.Sprintf("failed to trigger Sonarr rescan for %s", item.Title), resp, err)
	}
	defer resp.Body.Close() //nolint: errcheck

	log.Debug("Triggered Sonarr rescan", "series", item.Title)
	return nil
}

func hasEpisodeFiles(sr sonarrAPI.SeriesResource) bool {
	stats, ok := sr.GetStatisticsOk()
	if !ok || stats == nil {
		return false
	}
	return stats.GetEpisodeFileCount() > 0
}

func mediaItem(sr sonarrAPI.SeriesResource) arr.MediaItem {
	return arr.MediaItem{
		Kind:           arr.KindSonarr,
		ID:             sr.GetId(),
		Title:          sr.GetTitle(),
		Year:           sr.GetYear(),
		Path:           sr.GetPath(),
		RootFolderPath: sr.GetRootFolderPath(),
		TmdbID:         sr.GetTmdbId(),
		ImdbID:         sr.GetImdbId(),
		TvdbID:         sr.GetTvdbId(),
		Monitored:      sr.GetMonitored(),
		HasFile:        hasEpisodeFiles(sr),
	}
}

// wrapAPIErr maps auth failures onto the arr error taxonomy.
func wrapAPIErr(msg string, resp *http.Response, err error) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w", msg, arr.ErrUnauthorized)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// wrapRenameErr additionally treats 400/409 as a rejected rename. Only the
// path update gets this mapping; a bad request from any other endpoint is
// not a rename rejection.
func wrapRenameErr(msg string, resp *http.Response, err error) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusBadRequest, http.StatusConflict:
			return fmt.Errorf("%s: %w", msg, arr.ErrRenameRejected)
		}
	}
	return wrapAPIErr(msg, resp, err)
}
