package intake

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postersync/postersync/internal/config"
	"github.com/postersync/postersync/internal/naming"
	"github.com/postersync/postersync/internal/remote"
	"github.com/postersync/postersync/internal/scanner"
	"github.com/postersync/postersync/internal/syncer"
	"github.com/postersync/postersync/internal/testutil"
)

type fixture struct {
	cfg     *config.Config
	mem     *remote.Memory
	service *Service
	intake  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Local.BasePath = filepath.Join(base, "posters")
	cfg.Intake.Path = filepath.Join(base, "intake")

	classifier, err := naming.NewClassifier(cfg.Sync.PosterExtensions, cfg.Sync.PosterNames, cfg.Sync.SeasonPosterPatterns)
	require.NoError(t, err)

	mem := remote.NewMemory()
	logger := testutil.NopLogger()

	scan := scanner.NewService(classifier, logger)
	sync := syncer.NewService(cfg, classifier, scan, remote.NewSession(mem), nil, false, logger)
	service := NewService(cfg.Intake, sync, false, logger)

	require.NoError(t, service.EnsureLayout())

	return &fixture{cfg: cfg, mem: mem, service: service, intake: cfg.Intake.Path}
}

func (f *fixture) unmatchedPath(parts ...string) string {
	return filepath.Join(append([]string{f.cfg.Intake.UnmatchedDir()}, parts...)...)
}

// writeZip builds an archive in the intake folder from entry name to content.
func (f *fixture) writeZip(t *testing.T, name string, entries map[string][]byte) string {
	t.Helper()

	path := filepath.Join(f.intake, name)
	out, err := os.Create(path)
	require.NoError(t, err)

	w := zip.NewWriter(out)
	for entryName, content := range entries {
		entry, err := w.Create(entryName)
		require.NoError(t, err)
		_, err = entry.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, out.Close())
	return path
}

func TestProcessIntakeMovieArchive(t *testing.T) {
	f := newFixture(t)
	archive := f.writeZip(t, "MyMovie.zip", map[string][]byte{
		"poster.jpg": testutil.PosterBytes(4096),
		"extra.jpg":  testutil.PosterBytes(4096),
	})

	require.NoError(t, f.service.ProcessIntake(context.Background()))

	// No remote match: extracted files are parked, archive removed.
	assert.NoFileExists(t, archive)
	assert.Empty(t, f.mem.FilePaths())
	assert.FileExists(t, f.unmatchedPath("movies", "poster.jpg"))
	assert.FileExists(t, f.unmatchedPath("movies", "extra.jpg"))
}

func TestProcessIntakeMovieArchiveMatches(t *testing.T) {
	f := newFixture(t)
	archive := f.writeZip(t, "Inception (2010).zip", map[string][]byte{
		"Inception (2010).jpg": testutil.PosterBytes(4096),
	})
	f.mem.MkDir("movies/Inception (2010)")

	require.NoError(t, f.service.ProcessIntake(context.Background()))

	assert.NoFileExists(t, archive)
	assert.True(t, f.mem.HasFile("movies/Inception (2010)/poster.jpg"),
		"got files: %v", f.mem.FilePaths())
}

func TestProcessIntakeTVArchive(t *testing.T) {
	f := newFixture(t)
	archive := f.writeZip(t, "bundle.zip", map[string][]byte{
		"Breaking Bad/season01-poster.jpg": testutil.PosterBytes(4096),
		"Breaking Bad/season02-poster.jpg": testutil.PosterBytes(4096),
	})
	f.mem.MkDir("tv/Breaking Bad (2008)")

	require.NoError(t, f.service.ProcessIntake(context.Background()))

	// TV material is extracted for reconciliation, never auto-placed.
	assert.NoFileExists(t, archive)
	assert.Empty(t, f.mem.FilePaths())
	assert.FileExists(t, f.unmatchedPath("tv", "Breaking Bad", "Breaking Bad", "season01-poster.jpg"))
}

func TestProcessIntakeTVArchiveFlatEntries(t *testing.T) {
	f := newFixture(t)
	f.writeZip(t, "bundle.zip", map[string][]byte{
		"The Wire - season01.jpg": testutil.PosterBytes(4096),
	})

	require.NoError(t, f.service.ProcessIntake(context.Background()))

	// Series name recovered from the flat entry name.
	assert.FileExists(t, f.unmatchedPath("tv", "The Wire", "The Wire - season01.jpg"))
}

func TestProcessIntakeCorruptArchiveLeftInPlace(t *testing.T) {
	f := newFixture(t)
	// Valid zip magic, truncated body: identified as an archive but
	// unreadable, so it stays in the inbox for manual inspection.
	path := filepath.Join(f.intake, "broken.zip")
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04 truncated"), 0o644))

	require.NoError(t, f.service.ProcessIntake(context.Background()))

	assert.FileExists(t, path)
}

func TestProcessIntakePlainFileMatches(t *testing.T) {
	f := newFixture(t)
	path := testutil.WriteFile(t, f.intake, "Inception (2010).jpg", testutil.PosterBytes(4096))
	f.mem.MkDir("movies/Inception (2010)")

	require.NoError(t, f.service.ProcessIntake(context.Background()))

	assert.NoFileExists(t, path)
	assert.True(t, f.mem.HasFile("movies/Inception (2010)/poster.jpg"))
}

func TestProcessIntakePlainFileParked(t *testing.T) {
	f := newFixture(t)
	path := testutil.WriteFile(t, f.intake, "Unknown.jpg", testutil.PosterBytes(4096))

	require.NoError(t, f.service.ProcessIntake(context.Background()))

	assert.NoFileExists(t, path)
	assert.FileExists(t, f.unmatchedPath("movies", "Unknown.jpg"))
}

func TestProcessUnmatchedNormalizesStrays(t *testing.T) {
	f := newFixture(t)
	stray := testutil.WriteFile(t, f.cfg.Intake.UnmatchedDir(), "Stray.jpg", testutil.PosterBytes(4096))

	require.NoError(t, f.service.ProcessUnmatched(context.Background()))

	assert.NoFileExists(t, stray)
	assert.FileExists(t, f.unmatchedPath("movies", "Stray.jpg"))
}

func TestProcessUnmatchedRetriesAfterRemoteAppears(t *testing.T) {
	f := newFixture(t)
	parked := testutil.WriteFile(t, f.unmatchedPath("movies"), "Inception (2010).jpg", testutil.PosterBytes(4096))

	// First retry: nothing on the remote yet.
	require.NoError(t, f.service.ProcessUnmatched(context.Background()))
	assert.FileExists(t, parked)

	// The title folder appears remotely; the next retry places the file.
	f.mem.MkDir("movies/Inception (2010)")
	require.NoError(t, f.service.ProcessUnmatched(context.Background()))

	assert.NoFileExists(t, parked)
	assert.True(t, f.mem.HasFile("movies/Inception (2010)/poster.jpg"))
}

func TestProcessUnmatchedTVUsesSeriesFolder(t *testing.T) {
	f := newFixture(t)
	parked := testutil.WriteFile(t, f.unmatchedPath("tv", "Breaking Bad"), "season01-poster.jpg", testutil.PosterBytes(4096))
	f.mem.MkDir("tv/Breaking Bad (2008)")

	require.NoError(t, f.service.ProcessUnmatched(context.Background()))

	assert.NoFileExists(t, parked)
	assert.True(t, f.mem.HasFile("tv/Breaking Bad (2008)/Season 01/season01.jpg"),
		"got files: %v", f.mem.FilePaths())
}
