package syncer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/postersync/postersync/internal/remote"
	"github.com/postersync/postersync/internal/scanner"
)

// Actions recorded per placement attempt.
const (
	ActionUploaded    = "uploaded"
	ActionWouldUpload = "would_upload"
	ActionSkipped     = "skipped"
	ActionError       = "error"
	ActionMoved       = "moved"
)

// Skip reasons.
const (
	ReasonNoMatch  = "no-match"
	ReasonExists   = "exists"
	ReasonTooSmall = "too-small"
	ReasonTooLarge = "too-large"
)

// Event is one recorded placement attempt.
type Event struct {
	PassID     string
	Action     string
	MediaType  string
	Title      string
	SourcePath string
	RemotePath string
	Reason     string
}

// Recorder persists placement events for auditing. A nil Recorder disables
// recording.
type Recorder interface {
	Record(e Event) error
}

var videoExtensions = []string{".mkv", ".mp4", ".avi", ".mov", ".wmv", ".flv", ".m4v"}

// place runs the size gate, overwrite policy and upload (or dry-run
// accounting) for one resolved destination. All failures are converted into
// counter increments; a bad file never aborts the pass.
func (s *Service) place(st remote.Storage, passID, mediaType, title string, cand scanner.PosterCandidate, remotePath string) {
	event := Event{
		PassID:     passID,
		MediaType:  mediaType,
		Title:      title,
		SourcePath: cand.Path,
		RemotePath: remotePath,
	}

	info, err := os.Stat(cand.Path)
	if err != nil {
		s.logger.Error().Err(err).Str("file", cand.Path).Msg("Cannot stat poster file")
		s.stats.AddError()
		event.Action = ActionError
		event.Reason = err.Error()
		s.record(event)
		return
	}

	if reason, ok := s.sizeGate(info.Size()); !ok {
		s.logger.Warn().
			Str("file", cand.Path).
			Int64("size", info.Size()).
			Str("reason", reason).
			Msg("Poster file outside size bounds, skipping")
		s.stats.AddSkipped()
		event.Action = ActionSkipped
		event.Reason = reason
		s.record(event)
		return
	}

	overwrite := s.cfg.Sync.OverwriteExisting

	if s.dryRun {
		exists, err := st.PathExists(remotePath)
		if err != nil {
			s.logger.Error().Err(err).Str("remote", remotePath).Msg("Cannot check remote destination")
			s.stats.AddError()
			event.Action = ActionError
			event.Reason = err.Error()
			s.record(event)
			return
		}
		if exists && !overwrite {
			s.stats.AddSkipped()
			event.Action = ActionSkipped
			event.Reason = ReasonExists
			s.record(event)
			return
		}
		s.logger.Info().Str("file", cand.Path).Str("remote", remotePath).Msg("DRY RUN: would upload")
		s.stats.AddUploaded()
		event.Action = ActionWouldUpload
		s.record(event)
		return
	}

	uploaded, err := st.UploadFile(cand.Path, remotePath, overwrite)
	if err != nil {
		s.logger.Error().Err(err).Str("file", cand.Path).Str("remote", remotePath).Msg("Upload failed")
		s.stats.AddError()
		event.Action = ActionError
		event.Reason = err.Error()
		s.record(event)
		return
	}
	if !uploaded {
		s.stats.AddSkipped()
		event.Action = ActionSkipped
		event.Reason = ReasonExists
		s.record(event)
		return
	}

	s.logger.Info().Str("title", title).Str("remote", remotePath).Msg("Uploaded poster")
	s.stats.AddUploaded()
	event.Action = ActionUploaded
	s.record(event)
}

func (s *Service) sizeGate(size int64) (string, bool) {
	if size < s.cfg.Sync.MinFileSize {
		return ReasonTooSmall, false
	}
	if size > s.cfg.Sync.MaxFileSize {
		return ReasonTooLarge, false
	}
	return "", true
}

func (s *Service) record(e Event) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(e); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to record placement event")
	}
}

// warnIfNoMovieFile logs when the poster-alongside-movie option is enabled
// but the local title folder holds no video file. The destination is the
// matched folder either way.
func (s *Service) warnIfNoMovieFile(localTitleDir string) {
	entries, err := os.ReadDir(localTitleDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, videoExt := range videoExtensions {
			if ext == videoExt {
				return
			}
		}
	}
	s.logger.Warn().Str("folder", localTitleDir).Msg("No movie file found alongside poster")
}
