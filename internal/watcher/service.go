package watcher

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/postersync/postersync/internal/naming"
)

// FileProcessor is called to process detected file events.
type FileProcessor func(ctx context.Context, filePath string) error

// Service watches the configured local poster folders and feeds changed
// files into the sync engine.
type Service struct {
	watcher       *Watcher
	folders       []string
	fileProcessor FileProcessor
	logger        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a watcher service over the given local folders.
func NewService(folders []string, classifier *naming.Classifier, logger zerolog.Logger) (*Service, error) {
	watcher, err := New(DefaultConfig(), classifier, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		watcher: watcher,
		folders: folders,
		logger:  logger.With().Str("component", "watcher-service").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}

	watcher.SetHandler(s.handleEvents)

	return s, nil
}

// SetFileProcessor sets the function that processes file events.
func (s *Service) SetFileProcessor(processor FileProcessor) {
	s.fileProcessor = processor
}

// Start adds watches for every configured folder and begins watching.
// Missing folders are logged and skipped, matching the per-pass behavior of
// the sync engine.
func (s *Service) Start() error {
	watched := 0
	for _, folder := range s.folders {
		if _, err := os.Stat(folder); err != nil {
			s.logger.Warn().Str("path", folder).Msg("Folder does not exist, not watching")
			continue
		}
		if err := s.watcher.AddPath(folder); err != nil {
			s.logger.Warn().Err(err).Str("path", folder).Msg("Failed to watch folder")
			continue
		}
		watched++
	}

	s.watcher.Start()
	s.logger.Info().Int("folderCount", watched).Msg("Watcher service started")
	return nil
}

// Stop stops the watcher service.
func (s *Service) Stop() error {
	s.cancel()
	return s.watcher.Stop()
}

// WatchedPaths returns the currently watched paths.
func (s *Service) WatchedPaths() []string {
	return s.watcher.WatchedPaths()
}

// handleEvents processes batched file events.
func (s *Service) handleEvents(events []FileEvent) {
	if s.fileProcessor == nil {
		s.logger.Warn().Int("count", len(events)).Msg("No file processor configured, ignoring events")
		return
	}

	for _, event := range events {
		s.logger.Debug().
			Str("path", event.Path).
			Str("op", event.Op).
			Msg("Processing file event")

		if err := s.fileProcessor(s.ctx, event.Path); err != nil {
			s.logger.Warn().Err(err).Str("path", event.Path).Msg("Failed to process file event")
		}
	}
}
