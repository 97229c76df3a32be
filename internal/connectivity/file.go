package connectivity

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const stateOffline = "offline"

// FileSource reports connectivity from a state file. The file holding
// "offline" means offline; any other content, or no file at all, means
// online. Changes are picked up through fsnotify on the parent directory so
// the file may be created and removed freely.
type FileSource struct {
	path   string
	logger *zerolog.Logger
}

func NewFileSource(path string, logger *zerolog.Logger) *FileSource {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "state-file").Str("path", path).Logger()
	return &FileSource{path: filepath.Clean(path), logger: &l}
}

func (f *FileSource) Run(ctx context.Context, report func(online bool)) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.logger.Error().Err(err).Msg("failed to create fsnotify watcher")
		return
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		f.logger.Error().Err(err).Msg("failed to watch state file directory")
		return
	}

	report(f.online())

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			report(f.online())
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn().Err(err).Msg("state file watcher error")
		}
	}
}

func (f *FileSource) online() bool {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return true
	}
	return strings.ToLower(strings.TrimSpace(string(data))) != stateOffline
}
