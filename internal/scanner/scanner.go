// Package scanner walks local per-title poster folders and groups files into
// ranked poster candidates per title.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/postersync/postersync/internal/naming"
)

// PosterCandidate is one local poster file.
type PosterCandidate struct {
	Path     string // absolute path
	Stem     string // filename without extension
	Ext      string // extension including the dot
	NormStem string // lower-cased normalized stem
}

// MediaItem is one logical title: ranked series poster candidates plus
// per-season ranked candidates keyed by two-digit season id.
type MediaItem struct {
	Name    string
	Series  []PosterCandidate
	Seasons map[string][]PosterCandidate
}

// BestSeriesPoster returns the top-ranked series poster, if any.
func (m *MediaItem) BestSeriesPoster() (PosterCandidate, bool) {
	if len(m.Series) == 0 {
		return PosterCandidate{}, false
	}
	return m.Series[0], true
}

// Service scans local directories for poster files.
type Service struct {
	classifier *naming.Classifier
	logger     zerolog.Logger
}

// NewService creates a new scanner service.
func NewService(classifier *naming.Classifier, logger zerolog.Logger) *Service {
	return &Service{
		classifier: classifier,
		logger:     logger.With().Str("component", "scanner").Logger(),
	}
}

// ScanDirectory scans a media-type root for title folders. In recursive mode
// each subdirectory is one title folder; in non-recursive mode the directory
// itself is treated as the one title folder (used for single-file re-sync).
func (s *Service) ScanDirectory(root string, recursive bool) (map[string]*MediaItem, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("scan directory: %w", err)
	}

	result := make(map[string]*MediaItem)

	if !recursive {
		item, err := s.scanTitleFolder(root)
		if err != nil {
			return nil, err
		}
		if item != nil {
			result[item.Name] = item
		}
		return result, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		item, err := s.scanTitleFolder(filepath.Join(root, entry.Name()))
		if err != nil {
			s.logger.Warn().Err(err).Str("folder", entry.Name()).Msg("Skipping unreadable title folder")
			continue
		}
		if item != nil {
			result[item.Name] = item
		}
	}

	s.logger.Debug().Str("root", root).Int("titles", len(result)).Msg("Scan completed")
	return result, nil
}

// FindPostersAndSeasons returns the ranked series posters and per-season
// ranked posters found directly in a title folder.
func (s *Service) FindPostersAndSeasons(titleDir string) ([]PosterCandidate, map[string][]PosterCandidate, error) {
	entries, err := os.ReadDir(titleDir)
	if err != nil {
		return nil, nil, fmt.Errorf("read title folder: %w", err)
	}

	var series []PosterCandidate
	seasons := make(map[string][]PosterCandidate)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		cls := s.classifier.Classify(entry.Name())
		if !cls.IsPoster {
			continue
		}

		cand := newCandidate(filepath.Join(titleDir, entry.Name()))
		if cls.IsSeasonPoster {
			seasons[cls.SeasonID] = append(seasons[cls.SeasonID], cand)
		} else {
			series = append(series, cand)
		}
	}

	s.rank(series)
	for _, list := range seasons {
		s.rank(list)
	}

	return series, seasons, nil
}

func (s *Service) scanTitleFolder(dir string) (*MediaItem, error) {
	series, seasons, err := s.FindPostersAndSeasons(dir)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 && len(seasons) == 0 {
		return nil, nil
	}
	return &MediaItem{
		Name:    filepath.Base(dir),
		Series:  series,
		Seasons: seasons,
	}, nil
}

// rank sorts candidates by keyword preference, then extension preference.
// The sort is stable so files tying on both keys keep enumeration order.
func (s *Service) rank(candidates []PosterCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		ki := s.classifier.KeywordRank(candidates[i].Stem)
		kj := s.classifier.KeywordRank(candidates[j].Stem)
		if ki != kj {
			return ki < kj
		}
		return s.classifier.ExtensionRank(candidates[i].Ext) < s.classifier.ExtensionRank(candidates[j].Ext)
	})
}

func newCandidate(path string) PosterCandidate {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return PosterCandidate{
		Path:     path,
		Stem:     stem,
		Ext:      ext,
		NormStem: naming.Normalize(stem, false),
	}
}
