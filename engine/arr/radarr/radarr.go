package radarr

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	radarrAPI "github.com/devopsarr/radarr-go/radarr"
	"github.com/samber/lo"
	"github.com/tidyarr/tidyarr/cache"
	"github.com/tidyarr/tidyarr/config"
	"github.com/tidyarr/tidyarr/engine/arr"
)

var _ arr.Renamer = (*Radarr)(nil)

// Radarr adapts the Radarr API to the arr.Renamer contract.
type Radarr struct {
	client      *radarrAPI.APIClient
	cfg         *config.ArrConfig
	itemsCache  *cache.PrefixedCache[[]radarrAPI.MovieResource]
	formatCache *cache.PrefixedCache[string]
}

// NewClient creates a low-level Radarr API client from the service config.
func NewClient(cfg *config.ArrConfig) *radarrAPI.APIClient {
	rcfg := radarrAPI.NewConfiguration()

	// Don't modify the original config URL, work with a copy
	url := cfg.URL

	if strings.HasPrefix(url, "http://") {
		rcfg.Scheme = "http"
		url = strings.TrimPrefix(url, "http://")
	} else if strings.HasPrefix(url, "https://") {
		rcfg.Scheme = "https"
		url = strings.TrimPrefix(url, "https://")
	}

	rcfg.Host = url

	return radarrAPI.NewAPIClient(rcfg)
}

func radarrAuthCtx(ctx context.Context, cfg *config.ArrConfig) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg == nil {
		return ctx
	}
	return context.WithValue(
		ctx,
		radarrAPI.ContextAPIKeys,
		map[string]radarrAPI.APIKey{
			"X-Api-Key": {Key: cfg.APIKey},
		},
	)
}

// New creates a new Radarr adapter.
func New(client *radarrAPI.APIClient, cfg *config.ArrConfig, itemsCache *cache.PrefixedCache[[]radarrAPI.MovieResource], formatCache *cache.PrefixedCache[string]) *Radarr {
	return &Radarr{
		client:      client,
		cfg:         cfg,
		itemsCache:  itemsCache,
		formatCache: formatCache,
	}
}

// Kind returns the service kind.
func (r *Radarr) Kind() arr.Kind {
	return arr.KindRadarr
}

// ListItems returns all movies that have a file on disk, in Radarr's order.
func (r *Radarr) ListItems(ctx context.Context) ([]arr.MediaItem, error) {
	movies, err := r.getItems(ctx)
	if err != nil {
		return nil, err
	}

	withFiles := lo.Filter(movies, func(m radarrAPI.MovieResource, _ int) bool {
		return m.GetHasFile()
	})

	items := lo.Map(withFiles, func(m radarrAPI.MovieResource, _ int) arr.MediaItem {
		return mediaItem(m)
	})

	log.Debug("Listed Radarr movies", "total", len(movies), "withFiles", len(items))
	return items, nil
}

func (r *Radarr) getItems(ctx context.Context) ([]radarrAPI.MovieResource, error) {
	cachedItems, err := r.itemsCache.Get(ctx, "all")
	if err != nil {
		log.Debug("Failed to get Radarr items from cache, fetching from API", "error", err)
	}
	if len(cachedItems) != 0 {
		return cachedItems, nil
	}

	movies, resp, err := r.client.MovieAPI.ListMovie(radarrAuthCtx(ctx, r.cfg)).Execute()
	if err != nil {
		return nil, wrapAPIErr("failed to list Radarr movies", resp, err)
	}
	defer resp.Body.Close() //nolint: errcheck

	if err := r.itemsCache.Set(ctx, "all", movies); err != nil {
		log.Warnf("Failed to cache Radarr items: %v", err)
	}
	return movies, nil
}

// GetItem returns a fresh snapshot of a single movie, bypassing the cache.
func (r *Radarr) GetItem(ctx context.Context, id int32) (arr.MediaItem, error) {
	movie, resp, err := r.client.MovieAPI.GetMovieById(radarrAuthCtx(ctx, r.cfg), id).Execute()
	if err != nil {
		return arr.MediaItem{}, wrapAPIErr(fmt.Sprintf("failed to get Radarr movie %d", id), resp, err)
	}
	defer resp.Body.Close() //nolint: errcheck

	return mediaItem(*movie), nil
}

// FolderFormat returns the movie folder naming template, either the override
// from the tidyarr config or Radarr's own naming config.
func (r *Radarr) FolderFormat(ctx context.Context) (string, error) {
	if r.cfg.FolderFormat != "" {
		return r.cfg.FolderFormat, nil
	}

	cached, err := r.formatCache.Get(ctx, "folder")
	if err == nil && cached != "" {
		return cached, nil
	}

	naming, resp, err := r.client.NamingConfigAPI.GetNamingConfig(radarrAuthCtx(ctx, r.cfg)).Execute()
	if err != nil {
		return "", wrapAPIErr("failed to get Radarr naming config", resp, err)
	}
	defer resp.Body.Close() //nolint: errcheck

	format := naming.GetMovieFolderFormat()
	if format == "" {
		return "", fmt.Errorf("radarr returned an empty movie folder format")
	}

	if err := r.formatCache.Set(ctx, "folder", format); err != nil {
		log.Warnf("Failed to cache Radarr folder format: %v", err)
	}
	return format, nil
}

// RequestRename updates the movie's path and asks Radarr to move the files.
// The move itself happens out-of-band, poll with PollRename.
func (r *Radarr) RequestRename(ctx context.Context, item arr.MediaItem, targetPath string) (arr.RenameJob, error) {
	movie, resp, err := r.client.MovieAPI.GetMovieById(radarrAuthCtx(ctx, r.cfg), item.ID).Execute()
	if err != nil {
		return arr.RenameJob{}, wrapAPIErr(fmt.Sprintf("failed to get Radarr movie %d", item.ID), resp, err)
	}
	defer resp.Body.Close() //nolint: errcheck

	movie.SetPath(targetPath)

	_, resp, err = r.client.MovieAPI.UpdateMovie(radarrAuthCtx(ctx, r.cfg), fmt.Sprintf("%d", item.ID)).
		MovieResource(*movie).
		MoveFiles(true).
		Execute()
	if err != nil {
		return arr.RenameJob{}, wrapRenameErr(fmt.Sprintf("failed to update path of Radarr movie %s", item.Title), resp, err)
	}
	defer resp.Body.Close() //nolint: errcheck

	// The cached movie list still carries the old path; drop it so the next
	// listing plans from fresh paths.
	if err := r.itemsCache.Delete(ctx, "all"); err != nil {
		log.Warnf("Failed to invalidate Radarr items cache: %v", err)
	}

	log.Info("Requested Radarr folder move", "movie", item.Title, "target", targetPath)
	return arr.RenameJob{ItemID: item.ID, TargetPath: targetPath}, nil
}

// PollRename reports whether Radarr has applied the move yet.
func (r *Radarr) PollRename(ctx context.Context, job arr.RenameJob) (arr.RenameState, error) {
	item, err := r.GetItem(ctx, job.ItemID)
	if err != nil {
		return arr.RenameStateFailed, err
	}
	if strings.TrimRight(item.Path, "/") == strings.TrimRight(job.TargetPath, "/") {
		return arr.RenameStateSucceeded, nil
	}
	return arr.RenameStatePending, nil
}

// RefreshItem triggers a rescan so Radarr re-detects the movie's files.
func (r *Radarr) RefreshItem(ctx context.Context, item arr.MediaItem) error {
	command := radarrAPI.NewCommandResource()
	command.SetName("RescanMovie")

	_, resp, err := r.client.CommandAPI.CreateCommand(radarrAuthCtx(ctx, r.cfg)).
		CommandResource(*command).
		Execute()
	if err != nil {
		return wrapAPIErr(fmt.Sprintf("failed to trigger Radarr rescan for %s", item.Title), resp, err)
	}
	defer resp.Body.Close() //nolint: errcheck

	log.Debug("Triggered Radarr rescan", "movie", item.Title)
	return nil
}

func mediaItem(m radarrAPI.MovieResource) arr.MediaItem {
	return arr.MediaItem{
		Kind:           arr.KindRadarr,
		ID:             m.GetId(),
		Title:          m.GetTitle(),
		Year:           m.GetYear(),
		Path:           m.GetPath(),
		RootFolderPath: m.GetRootFolderPath(),
		TmdbID:         m.GetTmdbId(),
		ImdbID:         m.GetImdbId(),
		Monitored:      m.GetMonitored(),
		HasFile:        m.GetHasFile(),
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
