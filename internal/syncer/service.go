// Package syncer is the matching and placement engine: it resolves local
// poster candidates against the remote folder catalog and drives uploads
// under media-server naming conventions.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/postersync/postersync/internal/config"
	"github.com/postersync/postersync/internal/naming"
	"github.com/postersync/postersync/internal/pathutil"
	"github.com/postersync/postersync/internal/remote"
	"github.com/postersync/postersync/internal/scanner"
)

// looseSeasonPattern finds a season token anywhere in a loose filename stem,
// as dropped into the intake inbox ("Breaking Bad Season 01").
var looseSeasonPattern = regexp.MustCompile(`(?i)season[ _-]?(\d{1,2})`)

// seasonTitlePattern strips a trailing season token off a stem to recover
// the series title.
var seasonTitlePattern = regexp.MustCompile(`(?i)^(.+?)[-_ ]+season[ _-]?\d{1,2}`)

// Service orchestrates sync passes. One instance owns the pass statistics
// and the last-pass summary exposed on the status endpoint.
type Service struct {
	cfg        *config.Config
	classifier *naming.Classifier
	scanner    *scanner.Service
	session    *remote.Session
	recorder   Recorder
	stats      *Stats
	dryRun     bool
	logger     zerolog.Logger

	mu         sync.Mutex
	lastPassID string
	lastRun    time.Time
	lastPass   Snapshot
}

// Status is a point-in-time view of the engine for the status endpoint.
type Status struct {
	DryRun     bool      `json:"dry_run"`
	LastPassID string    `json:"last_pass_id,omitempty"`
	LastRun    time.Time `json:"last_run,omitzero"`
	LastPass   Snapshot  `json:"last_pass"`
	Current    Snapshot  `json:"current"`
}

// NewService creates the sync orchestrator. recorder may be nil to disable
// placement history.
func NewService(cfg *config.Config, classifier *naming.Classifier, scan *scanner.Service, session *remote.Session, recorder Recorder, dryRun bool, logger zerolog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		classifier: classifier,
		scanner:    scan,
		session:    session,
		recorder:   recorder,
		stats:      &Stats{},
		dryRun:     dryRun,
		logger:     logger.With().Str("component", "syncer").Logger(),
	}
}

// SyncAll performs one full synchronization pass over every configured media
// type. Per-item failures are counted and logged; only a failure to use the
// remote session at all is returned.
func (s *Service) SyncAll(ctx context.Context) error {
	passID := uuid.NewString()
	start := time.Now()

	s.logger.Info().Str("passId", passID).Bool("dryRun", s.dryRun).Msg("Starting full poster sync")

	err := s.session.WithConnection(ctx, func(st remote.Storage) error {
		for _, mediaType := range s.cfg.MediaTypes() {
			localFolder, _ := s.cfg.LocalFolder(mediaType)
			remoteBase, ok := s.cfg.RemotePath(mediaType)
			if !ok {
				s.logger.Warn().Str("mediaType", mediaType).Msg("No remote path configured, skipping media type")
				continue
			}
			if _, err := os.Stat(localFolder); err != nil {
				s.logger.Warn().Str("mediaType", mediaType).Str("folder", localFolder).Msg("Local folder does not exist, skipping media type")
				continue
			}
			s.syncMediaType(st, passID, mediaType, localFolder, remoteBase)
		}
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("passId", passID).Msg("Sync pass failed")
	}

	snap := s.stats.LogAndReset(s.logger, passID, time.Since(start))

	s.mu.Lock()
	s.lastPassID = passID
	s.lastRun = time.Now()
	s.lastPass = snap
	s.mu.Unlock()

	return err
}

// SyncSingleFile re-syncs the title folder owning a single changed file.
// Invoked by the filesystem watcher.
func (s *Service) SyncSingleFile(ctx context.Context, path string) error {
	if !s.classifier.IsPosterExtension(path) {
		return nil
	}

	mediaType, rel, ok := s.locate(path)
	if !ok {
		s.logger.Warn().Str("file", path).Msg("Changed file is outside configured local folders")
		return nil
	}
	remoteBase, ok := s.cfg.RemotePath(mediaType)
	if !ok {
		s.logger.Warn().Str("mediaType", mediaType).Msg("No remote path configured")
		return nil
	}

	// The owning title is the first path component under the media root;
	// files dropped directly in the root use their own stem.
	title := naming.Stem(path)
	if parts := strings.Split(filepath.ToSlash(rel), "/"); len(parts) > 1 {
		title = parts[0]
	}

	passID := uuid.NewString()
	start := time.Now()
	s.logger.Info().Str("passId", passID).Str("file", path).Str("title", title).Msg("Syncing changed file")

	err := s.session.WithConnection(ctx, func(st remote.Storage) error {
		items, err := s.scanner.ScanDirectory(filepath.Dir(path), false)
		if err != nil {
			return fmt.Errorf("rescan title folder: %w", err)
		}
		for _, item := range items {
			item.Name = title
			localFolder, _ := s.cfg.LocalFolder(mediaType)
			s.syncTitle(st, passID, mediaType, localFolder, item, remoteBase)
		}
		return nil
	})

	// Single-file syncs carry their own pass: left in the shared counters
	// they would inflate the next scheduled pass's summary.
	s.stats.LogAndReset(s.logger, passID, time.Since(start))
	return err
}

// MatchAndMove attempts to match one loose poster file against the remote
// catalog and move it into place, trying movies first and TV second.
// titleHint, when non-empty, is tried as an additional TV title (used for
// files parked under unmatched/tv/<series>/). It returns true when the file
// found a home and was removed locally.
func (s *Service) MatchAndMove(st remote.Storage, passID, localPath, titleHint string) (bool, error) {
	if !s.classifier.IsPosterExtension(localPath) {
		return false, nil
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", localPath, err)
	}
	if reason, ok := s.sizeGate(info.Size()); !ok {
		s.logger.Warn().Str("file", localPath).Int64("size", info.Size()).Str("reason", reason).Msg("Intake file outside size bounds")
		return false, nil
	}

	stem := naming.Stem(localPath)
	ext := filepath.Ext(localPath)

	if base, ok := s.cfg.RemotePath(config.MediaTypeMovies); ok {
		folder, err := ResolveFolder(st, base, stem, false)
		if err == nil {
			dest := pathutil.JoinRemote(base, folder, PosterFilename(ext))
			return s.moveInto(st, passID, config.MediaTypeMovies, stem, localPath, dest)
		}
		if !errors.Is(err, ErrNoMatch) {
			return false, err
		}
	}

	if base, ok := s.cfg.RemotePath(config.MediaTypeTV); ok {
		seasonID, hasSeason := looseSeasonID(stem)

		for _, title := range tvTitleCandidates(stem, titleHint) {
			folder, err := ResolveFolder(st, base, title, true)
			if errors.Is(err, ErrNoMatch) {
				continue
			}
			if err != nil {
				return false, err
			}
			titleDir := pathutil.JoinRemote(base, folder)

			if hasSeason {
				seasonName, exists, err := ResolveSeasonFolder(st, titleDir, seasonID)
				if err != nil {
					return false, err
				}
				if !exists {
					if err := st.CreateDirectory(pathutil.JoinRemote(titleDir, seasonName)); err != nil {
						return false, err
					}
				}
				dest := pathutil.JoinRemote(titleDir, seasonName, SeasonFilename(seasonID, ext))
				return s.moveInto(st, passID, config.MediaTypeTV, title, localPath, dest)
			}

			dest := pathutil.JoinRemote(titleDir, PosterFilename(ext))
			return s.moveInto(st, passID, config.MediaTypeTV, title, localPath, dest)
		}
	}

	return false, nil
}

// Session exposes the shared remote session so intake processing can batch
// many match attempts under one connection.
func (s *Service) Session() *remote.Session {
	return s.session
}

// Status reports the current and last-pass counters.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		DryRun:     s.dryRun,
		LastPassID: s.lastPassID,
		LastRun:    s.lastRun,
		LastPass:   s.lastPass,
		Current:    s.stats.Snapshot(),
	}
}

func (s *Service) syncMediaType(st remote.Storage, passID, mediaType, localFolder, remoteBase string) {
	s.logger.Info().Str("mediaType", mediaType).Str("folder", localFolder).Str("remote", remoteBase).Msg("Syncing media type")

	items, err := s.scanner.ScanDirectory(localFolder, true)
	if err != nil {
		s.logger.Warn().Err(err).Str("mediaType", mediaType).Msg("Scan failed, skipping media type")
		return
	}

	for _, name := range sortedKeys(items) {
		s.syncTitle(st, passID, mediaType, localFolder, items[name], remoteBase)
	}
}

// syncTitle places all posters for one title. Collections bypass folder
// matching entirely and trust identical naming on both sides.
func (s *Service) syncTitle(st remote.Storage, passID, mediaType, localFolder string, item *scanner.MediaItem, remoteBase string) {
	if mediaType == config.MediaTypeCollections {
		cand, ok := item.BestSeriesPoster()
		if !ok {
			return
		}
		s.stats.AddProcessed()
		dest := pathutil.JoinRemote(remoteBase, item.Name, PosterFilename(cand.Ext))
		s.place(st, passID, mediaType, item.Name, cand, dest)
		return
	}

	removeYear := mediaType == config.MediaTypeTV

	folder, err := ResolveFolder(st, remoteBase, item.Name, removeYear)
	if err != nil {
		// Count only the placements a matching run would have made: the
		// series poster, plus one per season when season sync applies.
		attempts := 0
		if _, ok := item.BestSeriesPoster(); ok {
			attempts++
		}
		if mediaType == config.MediaTypeTV && s.cfg.Sync.TVSeasonPosters {
			attempts += len(item.Seasons)
		}
		if errors.Is(err, ErrNoMatch) {
			s.logger.Warn().Str("title", item.Name).Str("remote", remoteBase).Msg("No matching remote folder, skipping")
			for i := 0; i < attempts; i++ {
				s.stats.AddProcessed()
				s.stats.AddSkipped()
			}
			s.record(Event{PassID: passID, Action: ActionSkipped, MediaType: mediaType, Title: item.Name, Reason: ReasonNoMatch})
			return
		}
		s.logger.Error().Err(err).Str("title", item.Name).Msg("Remote folder resolution failed")
		for i := 0; i < attempts; i++ {
			s.stats.AddProcessed()
			s.stats.AddError()
		}
		return
	}
	titleDir := pathutil.JoinRemote(remoteBase, folder)

	if cand, ok := item.BestSeriesPoster(); ok {
		s.stats.AddProcessed()
		if mediaType == config.MediaTypeMovies && s.cfg.Sync.PosterInMovieFolder {
			s.warnIfNoMovieFile(filepath.Join(localFolder, item.Name))
		}
		s.place(st, passID, mediaType, item.Name, cand, pathutil.JoinRemote(titleDir, PosterFilename(cand.Ext)))
	}

	if mediaType != config.MediaTypeTV || !s.cfg.Sync.TVSeasonPosters {
		return
	}

	for _, seasonID := range sortedKeys(item.Seasons) {
		candidates := item.Seasons[seasonID]
		if len(candidates) == 0 {
			continue
		}
		best := candidates[0]
		s.stats.AddProcessed()

		seasonName, exists, err := ResolveSeasonFolder(st, titleDir, seasonID)
		if err != nil {
			s.logger.Error().Err(err).Str("title", item.Name).Str("season", seasonID).Msg("Season folder resolution failed")
			s.stats.AddError()
			continue
		}
		if !exists && !s.dryRun {
			if err := st.CreateDirectory(pathutil.JoinRemote(titleDir, seasonName)); err != nil {
				s.logger.Error().Err(err).Str("title", item.Name).Str("season", seasonID).Msg("Cannot create season folder")
				s.stats.AddError()
				continue
			}
		}

		dest := pathutil.JoinRemote(titleDir, seasonName, SeasonFilename(seasonID, best.Ext))
		s.place(st, passID, mediaType, item.Name, best, dest)
	}
}

// moveInto uploads a loose file to its resolved destination and removes the
// local copy. Overwrite is forced: intake follows move semantics, and a
// matched file must not be retried forever.
func (s *Service) moveInto(st remote.Storage, passID, mediaType, title, localPath, remotePath string) (bool, error) {
	if s.dryRun {
		s.logger.Info().Str("file", localPath).Str("remote", remotePath).Msg("DRY RUN: would match and move")
		return true, nil
	}

	if _, err := st.UploadFile(localPath, remotePath, true); err != nil {
		return false, fmt.Errorf("upload %s: %w", localPath, err)
	}
	if err := os.Remove(localPath); err != nil {
		s.logger.Warn().Err(err).Str("file", localPath).Msg("Uploaded but could not remove local file")
	}

	s.logger.Info().Str("file", filepath.Base(localPath)).Str("remote", remotePath).Msg("Matched and moved poster")
	s.record(Event{
		PassID:     passID,
		Action:     ActionMoved,
		MediaType:  mediaType,
		Title:      title,
		SourcePath: localPath,
		RemotePath: remotePath,
	})
	return true, nil
}

// locate finds which configured media root a path lives under and the path
// relative to it.
func (s *Service) locate(path string) (mediaType, rel string, ok bool) {
	for _, mt := range s.cfg.MediaTypes() {
		folder, _ := s.cfg.LocalFolder(mt)
		r, err := filepath.Rel(folder, path)
		if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			continue
		}
		return mt, r, true
	}
	return "", "", false
}

func looseSeasonID(stem string) (string, bool) {
	m := looseSeasonPattern.FindStringSubmatch(stem)
	if m == nil {
		return "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%02d", n), true
}

// tvTitleCandidates lists the titles to try against the TV catalog for a
// loose file: the raw stem, the stem with a trailing season token stripped,
// and the enclosing-directory hint.
func tvTitleCandidates(stem, titleHint string) []string {
	candidates := []string{stem}
	if m := seasonTitlePattern.FindStringSubmatch(stem); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if titleHint != "" {
		candidates = append(candidates, titleHint)
	}

	seen := make(map[string]bool, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
