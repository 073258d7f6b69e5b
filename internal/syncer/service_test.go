package syncer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postersync/postersync/internal/config"
	"github.com/postersync/postersync/internal/naming"
	"github.com/postersync/postersync/internal/remote"
	"github.com/postersync/postersync/internal/scanner"
	"github.com/postersync/postersync/internal/testutil"
)

// memRecorder collects placement events in memory.
type memRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *memRecorder) Record(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *memRecorder) byAction(action string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	cfg      *config.Config
	mem      *remote.Memory
	recorder *memRecorder
	service  *Service
	base     string
}

func newFixture(t *testing.T, dryRun bool) *fixture {
	t.Helper()

	base := t.TempDir()
	for _, sub := range []string{"movies", "tv", "collections"} {
		require.NoError(t, os.MkdirAll(filepath.Join(base, sub), 0o755))
	}

	cfg := config.Default()
	cfg.Local.BasePath = base

	classifier, err := naming.NewClassifier(cfg.Sync.PosterExtensions, cfg.Sync.PosterNames, cfg.Sync.SeasonPosterPatterns)
	require.NoError(t, err)

	mem := remote.NewMemory()
	recorder := &memRecorder{}
	logger := testutil.NopLogger()

	scan := scanner.NewService(classifier, logger)
	service := NewService(cfg, classifier, scan, remote.NewSession(mem), recorder, dryRun, logger)

	return &fixture{cfg: cfg, mem: mem, recorder: recorder, service: service, base: base}
}

func (f *fixture) writeLocal(t *testing.T, name string, size int) string {
	t.Helper()
	return testutil.WriteFile(t, f.base, name, testutil.PosterBytes(size))
}

func TestSyncAllMoviePoster(t *testing.T) {
	f := newFixture(t, false)
	f.writeLocal(t, "movies/Inception (2010)/poster.jpg", 2*1024*1024)
	f.mem.MkDir("movies/Inception (2010)")

	require.NoError(t, f.service.SyncAll(context.Background()))

	assert.True(t, f.mem.HasFile("movies/Inception (2010)/poster.jpg"))

	status := f.service.Status()
	assert.Equal(t, 1, status.LastPass.Uploaded)
	assert.Equal(t, 0, status.LastPass.Errors)
	// Counters reset after the pass.
	assert.Equal(t, Snapshot{}, status.Current)
}

func TestSyncAllTVSeasonPoster(t *testing.T) {
	f := newFixture(t, false)
	f.writeLocal(t, "tv/Breaking Bad/season01-poster.jpg", 4096)
	f.mem.MkDir("tv/Breaking Bad (2008)")

	require.NoError(t, f.service.SyncAll(context.Background()))

	assert.True(t, f.mem.HasFile("tv/Breaking Bad (2008)/Season 01/season01.jpg"),
		"got files: %v", f.mem.FilePaths())
	assert.Equal(t, 1, f.service.Status().LastPass.Uploaded)
}

func TestSyncAllReusesUnpaddedSeasonFolder(t *testing.T) {
	f := newFixture(t, false)
	f.writeLocal(t, "tv/The Wire/s2-poster.png", 4096)
	f.mem.MkDir("tv/The Wire")
	f.mem.MkDir("tv/The Wire/Season 2")

	require.NoError(t, f.service.SyncAll(context.Background()))

	assert.True(t, f.mem.HasFile("tv/The Wire/Season 2/season02.png"),
		"got files: %v", f.mem.FilePaths())
}

func TestSyncAllSeasonSyncDisabled(t *testing.T) {
	f := newFixture(t, false)
	f.cfg.Sync.TVSeasonPosters = false
	f.writeLocal(t, "tv/Breaking Bad/poster.jpg", 4096)
	f.writeLocal(t, "tv/Breaking Bad/season01-poster.jpg", 4096)
	f.mem.MkDir("tv/Breaking Bad (2008)")

	require.NoError(t, f.service.SyncAll(context.Background()))

	assert.True(t, f.mem.HasFile("tv/Breaking Bad (2008)/poster.jpg"))
	assert.False(t, f.mem.HasFile("tv/Breaking Bad (2008)/Season 01/season01.jpg"))
}

func TestSyncAllCollectionBypassesMatching(t *testing.T) {
	f := newFixture(t, false)
	f.writeLocal(t, "collections/Marvel Collection/poster.jpg", 4096)
	// No remote folder pre-created: collections trust identical naming.

	require.NoError(t, f.service.SyncAll(context.Background()))

	assert.True(t, f.mem.HasFile("collections/Marvel Collection/poster.jpg"))
}

func TestSyncAllNoMatchSkips(t *testing.T) {
	f := newFixture(t, false)
	f.writeLocal(t, "movies/Tenet (2020)/poster.jpg", 4096)
	f.mem.MkDir("movies/Inception (2010)")

	require.NoError(t, f.service.SyncAll(context.Background()))

	assert.Empty(t, f.mem.FilePaths())
	status := f.service.Status()
	assert.Equal(t, 1, status.LastPass.Skipped)
	assert.Equal(t, 0, status.LastPass.Errors)
	assert.Len(t, f.recorder.byAction(ActionSkipped), 1)
}

func TestSyncAllNoMatchCountsOnlyAttemptedPlacements(t *testing.T) {
	f := newFixture(t, false)
	// A movie folder holding a season-named file: season posters are never
	// placed for movies, so a failed match is one attempt, not two.
	f.writeLocal(t, "movies/Unknown Movie/poster.jpg", 4096)
	f.writeLocal(t, "movies/Unknown Movie/season01-poster.jpg", 4096)

	require.NoError(t, f.service.SyncAll(context.Background()))

	status := f.service.Status()
	assert.Equal(t, 1, status.LastPass.Processed)
	assert.Equal(t, 1, status.LastPass.Skipped)
}

func TestSyncAllNoMatchSeasonSyncDisabled(t *testing.T) {
	f := newFixture(t, false)
	f.cfg.Sync.TVSeasonPosters = false
	f.writeLocal(t, "tv/Unknown Show/poster.jpg", 4096)
	f.writeLocal(t, "tv/Unknown Show/season01-poster.jpg", 4096)

	require.NoError(t, f.service.SyncAll(context.Background()))

	// With season sync off only the series poster would have been placed.
	status := f.service.Status()
	assert.Equal(t, 1, status.LastPass.Processed)
	assert.Equal(t, 1, status.LastPass.Skipped)
}

func TestSyncAllSizeGate(t *testing.T) {
	f := newFixture(t, false)
	f.writeLocal(t, "movies/Small Movie/poster.jpg", 500) // below 1024 minimum
	f.mem.MkDir("movies/Small Movie")

	require.NoError(t, f.service.SyncAll(context.Background()))

	assert.Empty(t, f.mem.FilePaths())
	status := f.service.Status()
	assert.Equal(t, 1, status.LastPass.Skipped)
	assert.Equal(t, 0, status.LastPass.Errors)

	skips := f.recorder.byAction(ActionSkipped)
	require.Len(t, skips, 1)
	assert.Equal(t, ReasonTooSmall, skips[0].Reason)
}

func TestSyncAllSkipsExistingWithoutOverwrite(t *testing.T) {
	f := newFixture(t, false)
	f.writeLocal(t, "movies/Inception (2010)/poster.jpg", 4096)
	f.mem.MkDir("movies/Inception (2010)")
	f.mem.PutFile("movies/Inception (2010)/poster.jpg", []byte("existing"))

	require.NoError(t, f.service.SyncAll(context.Background()))

	assert.Equal(t, 0, f.mem.WriteCalls)
	assert.Equal(t, 1, f.service.Status().LastPass.Skipped)
}

func TestSyncAllOverwritesWhenConfigured(t *testing.T) {
	f := newFixture(t, false)
	f.cfg.Sync.OverwriteExisting = true
	f.writeLocal(t, "movies/Inception (2010)/poster.jpg", 4096)
	f.mem.MkDir("movies/Inception (2010)")
	f.mem.PutFile("movies/Inception (2010)/poster.jpg", []byte("existing"))

	require.NoError(t, f.service.SyncAll(context.Background()))

	assert.Equal(t, 1, f.mem.WriteCalls)
	assert.Equal(t, 1, f.service.Status().LastPass.Uploaded)
}

func TestSyncAllDryRunNeverWrites(t *testing.T) {
	f := newFixture(t, true)
	f.writeLocal(t, "movies/Inception (2010)/poster.jpg", 4096)
	f.writeLocal(t, "tv/Breaking Bad/season01-poster.jpg", 4096)
	f.mem.MkDir("movies/Inception (2010)")
	f.mem.MkDir("tv/Breaking Bad (2008)")

	require.NoError(t, f.service.SyncAll(context.Background()))

	assert.Equal(t, 0, f.mem.WriteCalls)
	assert.Empty(t, f.mem.FilePaths())

	// Would-upload counts match what a real run would upload.
	assert.Equal(t, 2, f.service.Status().LastPass.Uploaded)
	assert.Len(t, f.recorder.byAction(ActionWouldUpload), 2)
}

func TestSyncAllDryRunRespectsExisting(t *testing.T) {
	f := newFixture(t, true)
	f.writeLocal(t, "movies/Inception (2010)/poster.jpg", 4096)
	f.mem.MkDir("movies/Inception (2010)")
	f.mem.PutFile("movies/Inception (2010)/poster.jpg", []byte("existing"))

	require.NoError(t, f.service.SyncAll(context.Background()))

	status := f.service.Status()
	assert.Equal(t, 0, status.LastPass.Uploaded)
	assert.Equal(t, 1, status.LastPass.Skipped)
}

func TestSyncSingleFile(t *testing.T) {
	f := newFixture(t, false)
	path := f.writeLocal(t, "movies/Inception (2010)/poster.jpg", 4096)
	f.mem.MkDir("movies/Inception (2010)")

	require.NoError(t, f.service.SyncSingleFile(context.Background(), path))

	assert.True(t, f.mem.HasFile("movies/Inception (2010)/poster.jpg"))
}

func TestSyncSingleFileKeepsCountersOutOfNextPass(t *testing.T) {
	f := newFixture(t, false)
	path := f.writeLocal(t, "movies/Inception (2010)/poster.jpg", 4096)
	f.mem.MkDir("movies/Inception (2010)")

	require.NoError(t, f.service.SyncSingleFile(context.Background(), path))

	// The single-file sync logs and resets its own counters.
	assert.Equal(t, Snapshot{}, f.service.Status().Current)

	// The next full pass reports only its own work: the poster now exists
	// remotely, so it is a skip, not an inherited upload count.
	require.NoError(t, f.service.SyncAll(context.Background()))
	status := f.service.Status()
	assert.Equal(t, 1, status.LastPass.Processed)
	assert.Equal(t, 0, status.LastPass.Uploaded)
	assert.Equal(t, 1, status.LastPass.Skipped)
}

func TestSyncSingleFileIgnoresForeignPaths(t *testing.T) {
	f := newFixture(t, false)
	outside := testutil.WriteFile(t, t.TempDir(), "poster.jpg", testutil.PosterBytes(4096))

	require.NoError(t, f.service.SyncSingleFile(context.Background(), outside))
	assert.Empty(t, f.mem.FilePaths())
}

func TestMatchAndMoveMovie(t *testing.T) {
	f := newFixture(t, false)
	path := testutil.WriteFile(t, t.TempDir(), "Inception (2010).jpg", testutil.PosterBytes(4096))
	f.mem.MkDir("movies/Inception (2010)")

	var matched bool
	err := f.service.Session().WithConnection(context.Background(), func(st remote.Storage) error {
		var err error
		matched, err = f.service.MatchAndMove(st, "pass-1", path, "")
		return err
	})
	require.NoError(t, err)

	assert.True(t, matched)
	assert.True(t, f.mem.HasFile("movies/Inception (2010)/poster.jpg"))
	assert.NoFileExists(t, path)
}

func TestMatchAndMoveTVSeason(t *testing.T) {
	f := newFixture(t, false)
	path := testutil.WriteFile(t, t.TempDir(), "Breaking Bad Season 01.jpg", testutil.PosterBytes(4096))
	f.mem.MkDir("tv/Breaking Bad (2008)")

	var matched bool
	err := f.service.Session().WithConnection(context.Background(), func(st remote.Storage) error {
		var err error
		matched, err = f.service.MatchAndMove(st, "pass-1", path, "")
		return err
	})
	require.NoError(t, err)

	assert.True(t, matched)
	assert.True(t, f.mem.HasFile("tv/Breaking Bad (2008)/Season 01/season01.jpg"),
		"got files: %v", f.mem.FilePaths())
	assert.NoFileExists(t, path)
}

func TestMatchAndMoveUsesTitleHint(t *testing.T) {
	f := newFixture(t, false)
	path := testutil.WriteFile(t, t.TempDir(), "season02.png", testutil.PosterBytes(4096))
	f.mem.MkDir("tv/The Wire")

	var matched bool
	err := f.service.Session().WithConnection(context.Background(), func(st remote.Storage) error {
		var err error
		matched, err = f.service.MatchAndMove(st, "pass-1", path, "The Wire")
		return err
	})
	require.NoError(t, err)

	assert.True(t, matched)
	assert.True(t, f.mem.HasFile("tv/The Wire/Season 02/season02.png"),
		"got files: %v", f.mem.FilePaths())
}

func TestMatchAndMoveNoMatch(t *testing.T) {
	f := newFixture(t, false)
	path := testutil.WriteFile(t, t.TempDir(), "Unknown Movie.jpg", testutil.PosterBytes(4096))

	var matched bool
	err := f.service.Session().WithConnection(context.Background(), func(st remote.Storage) error {
		var err error
		matched, err = f.service.MatchAndMove(st, "pass-1", path, "")
		return err
	})
	require.NoError(t, err)

	assert.False(t, matched)
	assert.FileExists(t, path)
}
