package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidyarr/tidyarr/config"
	"github.com/tidyarr/tidyarr/engine/arr"
	"github.com/tidyarr/tidyarr/store"
)

// mockRenamer is an in-memory Renamer. RequestRename applies the move
// immediately, so the first poll observes the new path, unless pollState
// pins the reported state.
type mockRenamer struct {
	kind   arr.Kind
	format string
	items  []arr.MediaItem

	formatErr error
	listErr   error
	renameErr error
	// pollState, when set, is reported for every poll regardless of the
	// item's actual path.
	pollState arr.RenameState
	// lostFiles makes every re-fetched item report HasFile=false, as if the
	// service could not find the files after the move.
	lostFiles bool
	// onRename, when set, runs after a rename request has been applied.
	onRename func(item arr.MediaItem)

	renameRequests []arr.RenameJob
	refreshCalls   []int32
}

var _ arr.Renamer = (*mockRenamer)(nil)

func (m *mockRenamer) Kind() arr.Kind { return m.kind }

func (m *mockRenamer) ListItems(_ context.Context) ([]arr.MediaItem, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	items := make([]arr.MediaItem, len(m.items))
	copy(items, m.items)
	return items, nil
}

func (m *mockRenamer) GetItem(_ context.Context, id int32) (arr.MediaItem, error) {
	for _, item := range m.items {
		if item.ID == id {
			if m.lostFiles {
				item.HasFile = false
			}
			return item, nil
		}
	}
	return arr.MediaItem{}, fmt.Errorf("item %d not found", id)
}

func (m *mockRenamer) FolderFormat(_ context.Context) (string, error) {
	if m.formatErr != nil {
		return "", m.formatErr
	}
	return m.format, nil
}

func (m *mockRenamer) RequestRename(_ context.Context, item arr.MediaItem, targetPath string) (arr.RenameJob, error) {
	if m.renameErr != nil {
		return arr.RenameJob{}, m.renameErr
	}
	job := arr.RenameJob{ItemID: item.ID, TargetPath: targetPath}
	m.renameRequests = append(m.renameRequests, job)
	for i := range m.items {
		if m.items[i].ID == item.ID {
			m.items[i].Path = targetPath
		}
	}
	if m.onRename != nil {
		m.onRename(item)
	}
	return job, nil
}

func (m *mockRenamer) PollRename(ctx context.Context, job arr.RenameJob) (arr.RenameState, error) {
	if err := ctx.Err(); err != nil {
		return arr.RenameStateFailed, err
	}
	if m.pollState != "" {
		return m.pollState, nil
	}
	for _, item := range m.items {
		if item.ID == job.ItemID {
			if strings.TrimRight(item.Path, "/") == strings.TrimRight(job.TargetPath, "/") {
				return arr.RenameStateSucceeded, nil
			}
			return arr.RenameStatePending, nil
		}
	}
	return arr.RenameStateFailed, fmt.Errorf("item %d not found", job.ItemID)
}

func (m *mockRenamer) RefreshItem(_ context.Context, item arr.MediaItem) error {
	m.refreshCalls = append(m.refreshCalls, item.ID)
	return nil
}

type mockRefresher struct {
	calls int
	err   error
}

func (m *mockRefresher) RefreshLibraries(_ context.Context) error {
	m.calls++
	return m.err
}

func testConfig() *config.Config {
	return &config.Config{
		WorkLimit:      0,
		PollInterval:   time.Millisecond,
		PollAttempts:   3,
		VerifyAttempts: 2,
	}
}

func newTestEngine(t *testing.T, cfg *config.Config, refresher *mockRefresher, services ...arr.Renamer) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})
	return &Engine{
		cfg:      cfg,
		store:    st,
		services: services,
		jellyfin: refresher,
	}, st
}

func testMovie(id int32, path string) arr.MediaItem {
	return arr.MediaItem{
		Kind:           arr.KindRadarr,
		ID:             id,
		Title:          "Avatar",
		Year:           2009,
		Path:           path,
		RootFolderPath: "/movies",
		TmdbID:         19995,
		Monitored:      true,
		HasFile:        true,
	}
}

func testSeries(id int32, path string) arr.MediaItem {
	return arr.MediaItem{
		Kind:           arr.KindSonarr,
		ID:             id,
		Title:          "Breaking Bad",
		Year:           2008,
		Path:           path,
		RootFolderPath: "/tv",
		TvdbID:         81189,
		Monitored:      true,
		HasFile:        true,
	}
}

const movieFormat = "{Movie CleanTitle} ({Release Year}) {TmdbId}"

func newMovieRenamer(items ...arr.MediaItem) *mockRenamer {
	return &mockRenamer{
		kind:   arr.KindRadarr,
		format: movieFormat,
		items:  items,
	}
}
