package ui

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/JeanRibes/keycapture/config"
)

type RecentFile struct {
	Path string
	Time time.Time
}

type RecentFiles []RecentFile

// Preferences keeps the recent takes in the configuration file.
type Preferences struct {
	cfg  *config.Config
	path string
}

func NewPreferences(cfg *config.Config, path string) *Preferences {
	return &Preferences{cfg: cfg, path: path}
}

func (p *Preferences) AddTake(path string) {
	p.cfg.AddRecent(path)
}

func (p *Preferences) DeleteTake(path string) {
	p.cfg.RecentTakes = slices.DeleteFunc(p.cfg.RecentTakes, func(s string) bool {
		return s == path
	})
}

func (p *Preferences) Save() error {
	if p.path == "" {
		return nil
	}
	return p.cfg.Save(p.path)
}

// Takes lists the recent takes still on disk, newest first, with their
// modification time.
func (p *Preferences) Takes() RecentFiles {
	out := RecentFiles{}
	for _, path := range p.cfg.RecentTakes {
		stat, err := os.Stat(path)
		if err != nil {
			continue
		}
		out = append(out, RecentFile{Path: path, Time: stat.ModTime()})
	}
	return out
}

// LCP is the longest common directory prefix of the paths, used to shorten
// them on screen.
func (rfs RecentFiles) LCP() string {
	if len(rfs) <= 1 {
		return ""
	}
	prefix := rfs[0].Path
	for _, rf := range rfs {
		for !strings.HasPrefix(rf.Path, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	i := strings.LastIndex(prefix, string(filepath.Separator))
	return prefix[:i+1]
}
