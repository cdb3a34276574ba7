package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnv overrides the data directory, ~/.agentdesk by default.
const HomeEnv = "AGENTDESK_HOME"

const (
	defaultBaseDir = ".agentdesk"
	databaseFile   = "agentdesk.db"
)

// Paths locates everything agentdesk keeps on disk.
type Paths struct {
	Base    string
	Config  string // config.yaml
	Data    string // SQLite database
	Logs    string
	Uploads string // chat attachments and CAD drawings
}

// PathsAt lays out the standard files under base.
func PathsAt(base string) Paths {
	return Paths{
		Base:    base,
		Config:  filepath.Join(base, "config.yaml"),
		Data:    filepath.Join(base, "data"),
		Logs:    filepath.Join(base, "logs"),
		Uploads: filepath.Join(base, "uploads"),
	}
}

// ResolvePaths uses $AGENTDESK_HOME when set and ~/.agentdesk otherwise.
func ResolvePaths() (Paths, error) {
	if base := os.Getenv(HomeEnv); base != "" {
		return PathsAt(base), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("locating home directory: %w", err)
	}
	return PathsAt(filepath.Join(home, defaultBaseDir)), nil
}

// Database is the SQLite file holding sessions, agents and preferences.
func (p Paths) Database() string {
	return filepath.Join(p.Data, databaseFile)
}

// LogFile is the default file for JSON logs.
func (p Paths) LogFile() string {
	return filepath.Join(p.Logs, "agentdesk.log")
}

// EnsureDirs creates the private directories agentdesk writes to.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Logs, p.Uploads} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", d, err)
		}
	}
	return nil
}
