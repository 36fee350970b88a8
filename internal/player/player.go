// Package player tracks what is playing. Actual audio output belongs to the
// client; the service resolves local paths and streams bytes over HTTP.
package player

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/musicvault/musicvault/internal/filesystem"
	"github.com/musicvault/musicvault/internal/logger"
)

// ErrNotDownloaded is returned when playback is requested for an asset with
// no local file.
var ErrNotDownloaded = errors.New("asset not downloaded")

// Player resolves downloaded assets for playback and remembers the current
// one. Starting a new asset implicitly stops the previous one.
type Player struct {
	musicDir string
	log      *logger.Logger

	mu      sync.Mutex
	current string
}

func New(musicDir string, log *logger.Logger) *Player {
	return &Player{
		musicDir: musicDir,
		log:      log.WithComponent("player"),
	}
}

// Play resolves the local path for an asset and marks it current.
func (p *Player) Play(assetName string) (string, error) {
	path := filepath.Join(p.musicDir, filesystem.Sanitize(assetName))
	if !filesystem.Exists(path) {
		return "", fmt.Errorf("%w: %s", ErrNotDownloaded, assetName)
	}

	p.mu.Lock()
	p.current = assetName
	p.mu.Unlock()

	p.log.Info("playing", "asset", assetName)
	return path, nil
}

// Stop clears the current asset.
func (p *Player) Stop() {
	p.mu.Lock()
	p.current = ""
	p.mu.Unlock()
}

// Current returns the asset marked as playing, or "".
func (p *Player) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}
