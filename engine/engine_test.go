package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidyarr/tidyarr/engine/arr"
	"github.com/tidyarr/tidyarr/store"
)

func TestRunOnceRenamesAndRecords(t *testing.T) {
	svc := newMovieRenamer(testMovie(1, "/movies/Avatar.2009.1080p.BluRay"))
	refresher := &mockRefresher{}
	eng, st := newTestEngine(t, testConfig(), refresher, svc)

	res, err := eng.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Considered)
	assert.Equal(t, 1, res.Planned)
	assert.Equal(t, 1, res.Renamed)
	assert.Equal(t, 1, res.Verified)
	assert.Zero(t, res.Failed)

	require.Len(t, svc.renameRequests, 1)
	assert.Equal(t, "/movies/Avatar (2009) 19995", svc.renameRequests[0].TargetPath)
	assert.Equal(t, 1, refresher.calls)

	rec, err := st.GetRename(context.Background(), "radarr", 1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, store.RenameStatusDone, rec.Status)
	assert.Equal(t, "/movies/Avatar (2009) 19995", rec.Path)
	assert.Equal(t, res.RunID, rec.RunID)

	runs, err := st.RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunStatusCompleted, runs[0].Status)
}

func TestRunOnceSecondRunSkipsConfirmedItems(t *testing.T) {
	svc := newMovieRenamer(testMovie(1, "/movies/Avatar.2009.1080p.BluRay"))
	eng, _ := newTestEngine(t, testConfig(), &mockRefresher{}, svc)

	_, err := eng.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, svc.renameRequests, 1)

	res, err := eng.RunOnce(context.Background())
	require.NoError(t, err)

	// the first run moved the folder, the second run finds nothing to do
	assert.Equal(t, 1, res.Considered)
	assert.Zero(t, res.Planned)
	assert.Zero(t, res.Renamed)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, svc.renameRequests, 1)
}

func TestRunOnceWorkLimit(t *testing.T) {
	svc := newMovieRenamer(
		testMovie(1, "/movies/Avatar.2009.one"),
		testMovie(2, "/movies/Avatar.2009.two"),
		testMovie(3, "/movies/Avatar.2009.three"),
	)
	cfg := testConfig()
	cfg.WorkLimit = 1
	eng, _ := newTestEngine(t, cfg, &mockRefresher{}, svc)

	res, err := eng.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Renamed)
	assert.Len(t, svc.renameRequests, 1)
	assert.Equal(t, int32(1), svc.renameRequests[0].ItemID)
}

func TestRunOnceWorkLimitSharedAcrossServices(t *testing.T) {
	movies := newMovieRenamer(testMovie(1, "/movies/Avatar.2009.1080p"))
	series := &mockRenamer{
		kind:   arr.KindSonarr,
		format: "{Series TitleYear} [tvdbid-{TvdbId}]",
		items:  []arr.MediaItem{testSeries(1, "/tv/BrBa")},
	}
	cfg := testConfig()
	cfg.WorkLimit = 1
	eng, _ := newTestEngine(t, cfg, &mockRefresher{}, movies, series)

	res, err := eng.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Renamed)
	assert.Len(t, movies.renameRequests, 1)
	assert.Empty(t, series.renameRequests)
}

func TestRunOnceDryRun(t *testing.T) {
	svc := newMovieRenamer(testMovie(1, "/movies/Avatar.2009.1080p"))
	refresher := &mockRefresher{}
	cfg := testConfig()
	cfg.DryRun = true
	eng, st := newTestEngine(t, cfg, refresher, svc)

	res, err := eng.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Planned)
	assert.Zero(t, res.Renamed)
	assert.Empty(t, svc.renameRequests)
	assert.Empty(t, svc.refreshCalls)
	assert.Zero(t, refresher.calls)

	// dry runs leave no per-item trace either
	rec, err := st.GetRename(context.Background(), "radarr", 1)
	require.NoError(t, err)
	assert.Nil(t, rec)

	runs, err := st.RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].DryRun)
}

func TestRunOnceNoOpIsRecorded(t *testing.T) {
	svc := newMovieRenamer(testMovie(1, "/movies/Avatar (2009) 19995"))
	eng, st := newTestEngine(t, testConfig(), &mockRefresher{}, svc)

	res, err := eng.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Planned)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, svc.renameRequests)

	rec, err := st.GetRename(context.Background(), "radarr", 1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, store.RenameStatusDone, rec.Status)
}

func TestRunOnceMissingTokenSkipsWithoutRecord(t *testing.T) {
	item := testMovie(1, "/movies/Unannounced")
	item.Year = 0
	svc := newMovieRenamer(item)
	eng, st := newTestEngine(t, testConfig(), &mockRefresher{}, svc)

	res, err := eng.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Planned)
	assert.Empty(t, svc.renameRequests)

	// not cached, so the item is retried once the metadata shows up
	rec, err := st.GetRename(context.Background(), "radarr", 1)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRunOnceVerificationFailureRecordsFailed(t *testing.T) {
	svc := newMovieRenamer(testMovie(1, "/movies/Avatar.2009.1080p"))
	svc.lostFiles = true
	eng, st := newTestEngine(t, testConfig(), &mockRefresher{}, svc)

	res, err := eng.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Renamed)
	assert.Zero(t, res.Verified)
	assert.Equal(t, 1, res.Failed)

	rec, err := st.GetRename(context.Background(), "radarr", 1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, store.RenameStatusFailed, rec.Status)
}

func TestRunOnceRenameTimeoutRecordsFailed(t *testing.T) {
	svc := newMovieRenamer(testMovie(1, "/movies/Avatar.2009.1080p"))
	svc.pollState = arr.RenameStatePending
	eng, st := newTestEngine(t, testConfig(), &mockRefresher{}, svc)

	res, err := eng.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)

	rec, err := st.GetRename(context.Background(), "radarr", 1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, store.RenameStatusFailed, rec.Status)
}

func TestRunOnceRejectedRenameRecordsFailed(t *testing.T) {
	svc := newMovieRenamer(testMovie(1, "/movies/Avatar.2009.1080p"))
	svc.renameErr = arr.ErrRenameRejected
	eng, st := newTestEngine(t, testConfig(), &mockRefresher{}, svc)

	res, err := eng.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)

	rec, err := st.GetRename(context.Background(), "radarr", 1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, store.RenameStatusFailed, rec.Status)
}

func TestRunOnceNoServiceAvailable(t *testing.T) {
	svc := newMovieRenamer()
	svc.listErr = errors.New("connection refused")
	refresher := &mockRefresher{}
	eng, st := newTestEngine(t, testConfig(), refresher, svc)

	_, err := eng.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrNoServiceAvailable)
	assert.Zero(t, refresher.calls)

	runs, err := st.RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunStatusFailed, runs[0].Status)
}

func TestRunOnceUnavailableServiceDoesNotBlockOthers(t *testing.T) {
	movies := newMovieRenamer()
	movies.listErr = arr.ErrUnauthorized
	series := &mockRenamer{
		kind:   arr.KindSonarr,
		format: "{Series TitleYear} [tvdbid-{TvdbId}]",
		items:  []arr.MediaItem{testSeries(1, "/tv/BrBa")},
	}
	eng, _ := newTestEngine(t, testConfig(), &mockRefresher{}, movies, series)

	res, err := eng.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Renamed)
	require.Len(t, series.renameRequests, 1)
	assert.Equal(t, "/tv/Breaking Bad (2008) [tvdbid-81189]", series.renameRequests[0].TargetPath)
}

func TestRunOnceCancelledBeforeStart(t *testing.T) {
	svc := newMovieRenamer(testMovie(1, "/movies/Avatar.2009.1080p"))
	refresher := &mockRefresher{}
	eng, st := newTestEngine(t, testConfig(), refresher, svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := eng.RunOnce(ctx)
	require.NoError(t, err)

	assert.Zero(t, res.Renamed)
	assert.Empty(t, svc.renameRequests)
	assert.Zero(t, refresher.calls)

	runs, err := st.RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunStatusCancelled, runs[0].Status)
}

func TestRunOnceCancelledMidRunKeepsCommittedRecords(t *testing.T) {
	svc := newMovieRenamer(
		testMovie(1, "/movies/Avatar.2009.1080p"),
		testMovie(2, "/movies/Avatar.2009.2160p"),
		testMovie(3, "/movies/Avatar.2009.REMUX"),
	)
	refresher := &mockRefresher{}
	eng, st := newTestEngine(t, testConfig(), refresher, svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.onRename = func(item arr.MediaItem) {
		if item.ID == 2 {
			cancel()
		}
	}

	res, err := eng.RunOnce(ctx)
	require.NoError(t, err)

	// the first item completed before the cancellation and keeps its record
	rec, err := st.GetRename(context.Background(), "radarr", 1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, store.RenameStatusDone, rec.Status)

	// the in-flight item is abandoned without a record, so a later run
	// picks it up again
	rec, err = st.GetRename(context.Background(), "radarr", 2)
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = st.GetRename(context.Background(), "radarr", 3)
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.Equal(t, 1, res.Renamed)
	assert.Zero(t, refresher.calls)

	runs, err := st.RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunStatusCancelled, runs[0].Status)
}

func TestBudget(t *testing.T) {
	b := newBudget(2)
	assert.True(t, b.take())
	assert.True(t, b.take())
	assert.False(t, b.take())

	// zero means unlimited
	unlimited := newBudget(0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.take())
	}
}
