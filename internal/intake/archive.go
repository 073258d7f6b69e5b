package intake

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mholt/archives"

	"github.com/postersync/postersync/internal/naming"
	"github.com/postersync/postersync/internal/remote"
)

// seriesNamePattern recovers a series name from a flat archive entry name
// like "Breaking Bad - season01.jpg".
var seriesNamePattern = regexp.MustCompile(`(?i)^(.+?)[-_ ]+season`)

// isArchive reports whether a file is an archive in a format the extractor
// understands.
func (s *Service) isArchive(ctx context.Context, path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	format, _, err := archives.Identify(ctx, filepath.Base(path), f)
	if err != nil {
		return false
	}
	_, ok := format.(archives.Extractor)
	return ok
}

// processArchive classifies an archive as TV or movie material by entry
// names, extracts it into the matching unmatched area, and deletes the
// archive afterward. A corrupt archive is logged and left in place so it can
// be inspected or retried manually.
func (s *Service) processArchive(ctx context.Context, st remote.Storage, passID, archivePath string) {
	names, err := s.listArchive(ctx, archivePath)
	if err != nil {
		s.logger.Error().Err(err).Str("archive", archivePath).Msg("Cannot read archive, leaving in place")
		return
	}

	token := strings.ToLower(s.cfg.SeasonToken)
	series := ""
	isTV := false
	for _, name := range names {
		if !strings.Contains(strings.ToLower(name), token) {
			continue
		}
		isTV = true
		if i := strings.Index(name, "/"); i > 0 {
			series = name[:i]
		} else if m := seriesNamePattern.FindStringSubmatch(name); m != nil {
			series = strings.TrimSpace(m[1])
		}
		break
	}

	if isTV {
		if series == "" {
			series = naming.Stem(archivePath)
		}
		// TV material is never auto-placed here: season boundaries need the
		// reconciler's folder-aware retry.
		destDir := filepath.Join(s.cfg.UnmatchedDir(), "tv", series)
		if err := s.extractArchive(ctx, archivePath, destDir); err != nil {
			s.logger.Error().Err(err).Str("archive", archivePath).Msg("Extraction failed, leaving archive in place")
			return
		}
		s.logger.Info().Str("archive", filepath.Base(archivePath)).Str("series", series).Str("dest", destDir).Msg("Extracted TV archive, left for reconciliation")
	} else {
		destDir := filepath.Join(s.cfg.UnmatchedDir(), "movies", naming.Stem(archivePath))
		if err := s.extractArchive(ctx, archivePath, destDir); err != nil {
			s.logger.Error().Err(err).Str("archive", archivePath).Msg("Extraction failed, leaving archive in place")
			return
		}
		s.logger.Info().Str("archive", filepath.Base(archivePath)).Str("dest", destDir).Msg("Extracted movie archive")

		_ = filepath.WalkDir(destDir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			s.processFile(st, passID, path, "")
			return nil
		})
	}

	if err := os.Remove(archivePath); err != nil {
		s.logger.Warn().Err(err).Str("archive", archivePath).Msg("Cannot remove processed archive")
	}
}

// listArchive returns the entry names of an archive without writing anything
// to disk.
func (s *Service) listArchive(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	format, stream, err := archives.Identify(ctx, filepath.Base(path), f)
	if err != nil {
		return nil, fmt.Errorf("identify archive: %w", err)
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return nil, fmt.Errorf("unsupported archive format %s", format.Extension())
	}

	var names []string
	err = extractor.Extract(ctx, stream, func(_ context.Context, info archives.FileInfo) error {
		if !info.IsDir() {
			names = append(names, info.NameInArchive)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read archive entries: %w", err)
	}
	return names, nil
}

// extractArchive writes every archive entry under destDir, preserving entry
// paths. Entries escaping the destination are rejected.
func (s *Service) extractArchive(ctx context.Context, path, destDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	format, stream, err := archives.Identify(ctx, filepath.Base(path), f)
	if err != nil {
		return fmt.Errorf("identify archive: %w", err)
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return fmt.Errorf("unsupported archive format %s", format.Extension())
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	return extractor.Extract(ctx, stream, func(_ context.Context, info archives.FileInfo) error {
		rel := filepath.Clean(filepath.FromSlash(info.NameInArchive))
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
			return fmt.Errorf("archive entry escapes destination: %s", info.NameInArchive)
		}
		target := filepath.Join(destDir, rel)

		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		src, err := info.Open()
		if err != nil {
			return err
		}
		defer src.Close()

		dst, err := os.Create(target)
		if err != nil {
			return err
		}
		defer dst.Close()

		_, err = io.Copy(dst, src)
		return err
	})
}
