// Package intake processes the inbox where new poster files and archives are
// dropped, and the unmatched holding area where files wait for their remote
// title folder to appear.
package intake

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/postersync/postersync/internal/config"
	"github.com/postersync/postersync/internal/remote"
	"github.com/postersync/postersync/internal/syncer"
)

// Service drives intake and unmatched processing. A file's state is its
// location: intake/ means new, unmatched/movies/ or unmatched/tv/<series>/
// means parked for retry. All transitions are file moves.
type Service struct {
	cfg    config.IntakeConfig
	sync   *syncer.Service
	dryRun bool
	logger zerolog.Logger
}

// NewService creates the intake processor.
func NewService(cfg config.IntakeConfig, sync *syncer.Service, dryRun bool, logger zerolog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		sync:   sync,
		dryRun: dryRun,
		logger: logger.With().Str("component", "intake").Logger(),
	}
}

// EnsureLayout creates the inbox and unmatched directories if absent.
func (s *Service) EnsureLayout() error {
	for _, dir := range []string{
		s.cfg.Path,
		filepath.Join(s.cfg.UnmatchedDir(), "movies"),
		filepath.Join(s.cfg.UnmatchedDir(), "tv"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create intake directory %s: %w", dir, err)
		}
	}
	return nil
}

// ProcessIntake handles every file sitting directly in the inbox: archives
// are classified and extracted, plain files are matched and moved or parked
// in unmatched/movies/.
func (s *Service) ProcessIntake(ctx context.Context) error {
	if s.dryRun {
		s.logger.Debug().Msg("Dry run, skipping intake processing")
		return nil
	}
	if err := s.EnsureLayout(); err != nil {
		return err
	}

	entries, err := os.ReadDir(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("read intake folder: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, filepath.Join(s.cfg.Path, entry.Name()))
	}
	if len(files) == 0 {
		return nil
	}

	passID := uuid.NewString()
	s.logger.Info().Str("passId", passID).Int("files", len(files)).Msg("Processing intake folder")

	return s.sync.Session().WithConnection(ctx, func(st remote.Storage) error {
		for _, path := range files {
			if s.isArchive(ctx, path) {
				s.processArchive(ctx, st, passID, path)
			} else {
				s.processFile(st, passID, path, "")
			}
		}
		return nil
	})
}

// ProcessUnmatched retries every parked file against the current remote
// listing. Stray files in the unmatched root are first normalized into
// movies/. Safe to call on any schedule: a failed attempt leaves the file
// untouched.
func (s *Service) ProcessUnmatched(ctx context.Context) error {
	if s.dryRun {
		s.logger.Debug().Msg("Dry run, skipping unmatched processing")
		return nil
	}
	if err := s.EnsureLayout(); err != nil {
		return err
	}

	unmatched := s.cfg.UnmatchedDir()
	moviesDir := filepath.Join(unmatched, "movies")

	entries, err := os.ReadDir(unmatched)
	if err != nil {
		return fmt.Errorf("read unmatched folder: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(unmatched, entry.Name())
		dest := filepath.Join(moviesDir, entry.Name())
		s.logger.Info().Str("file", entry.Name()).Msg("Moving stray unmatched file to movies")
		if err := os.Rename(src, dest); err != nil {
			s.logger.Error().Err(err).Str("file", src).Msg("Cannot relocate stray file")
		}
	}

	type workItem struct {
		path string
		hint string
	}
	var work []workItem

	collect := func(root string, hintFromPath bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			hint := ""
			if hintFromPath {
				if rel, relErr := filepath.Rel(root, path); relErr == nil {
					if parts := strings.Split(filepath.ToSlash(rel), "/"); len(parts) > 1 {
						hint = parts[0]
					}
				}
			}
			work = append(work, workItem{path: path, hint: hint})
			return nil
		})
	}
	collect(moviesDir, false)
	collect(filepath.Join(unmatched, "tv"), true)

	if len(work) == 0 {
		return nil
	}

	passID := uuid.NewString()
	s.logger.Debug().Str("passId", passID).Int("files", len(work)).Msg("Retrying unmatched files")

	return s.sync.Session().WithConnection(ctx, func(st remote.Storage) error {
		for _, item := range work {
			matched, err := s.sync.MatchAndMove(st, passID, item.path, item.hint)
			if err != nil {
				s.logger.Error().Err(err).Str("file", item.path).Msg("Unmatched retry failed")
				continue
			}
			if matched {
				s.logger.Info().Str("file", filepath.Base(item.path)).Msg("Placed previously unmatched file")
			}
		}
		return nil
	})
}

// processFile matches and moves one loose file, parking it in
// unmatched/movies/ when no remote folder matches.
func (s *Service) processFile(st remote.Storage, passID, path, hint string) {
	matched, err := s.sync.MatchAndMove(st, passID, path, hint)
	if err != nil {
		s.logger.Error().Err(err).Str("file", path).Msg("Match and move failed")
		return
	}
	if matched {
		return
	}

	moviesDir := filepath.Join(s.cfg.UnmatchedDir(), "movies")
	dest := filepath.Join(moviesDir, filepath.Base(path))
	if dest == path {
		return
	}
	s.logger.Info().Str("file", filepath.Base(path)).Str("dest", dest).Msg("No match, parking in unmatched")
	if err := os.Rename(path, dest); err != nil {
		s.logger.Error().Err(err).Str("file", path).Msg("Cannot park unmatched file")
	}
}
