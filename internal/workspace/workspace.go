package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/dita2docbook/internal/logfields"
)

// Manager handles working tree operations (both temporary and persistent)
type Manager struct {
	baseDir    string
	tempDir    string
	persistent bool // If true, use baseDir directly without timestamps
	retain     bool // If true, ephemeral directories survive Cleanup
	logger     *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for working tree lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func (m *Manager) apply(opts []Option) *Manager {
	m.logger = slog.Default()
	for _, o := range opts {
		o(m)
	}
	return m
}

// NewManager creates a new workspace manager with ephemeral timestamped directories
func NewManager(baseDir string, opts ...Option) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	m := &Manager{
		baseDir:    baseDir,
		persistent: false,
	}
	return m.apply(opts)
}

// NewPersistentManager creates a workspace manager that uses a persistent directory.
// The workspace directory is fixed (baseDir/subdirName) and not cleaned up on Cleanup().
func NewPersistentManager(baseDir, subdirName string, opts ...Option) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if subdirName == "" {
		subdirName = "working"
	}
	m := &Manager{
		baseDir:    baseDir,
		tempDir:    filepath.Join(baseDir, subdirName),
		persistent: true,
	}
	return m.apply(opts)
}

// At returns a manager for a working tree that already exists at dir. Cleanup
// leaves it in place; its owner decides when it goes away.
func At(dir string, opts ...Option) *Manager {
	m := &Manager{
		baseDir:    filepath.Dir(dir),
		tempDir:    dir,
		persistent: true,
	}
	return m.apply(opts)
}

// SetRetain controls whether Cleanup keeps an ephemeral working tree on disk.
func (m *Manager) SetRetain(retain bool) {
	m.retain = retain
}

// Create creates a workspace directory
// For ephemeral mode: creates a unique timestamped directory
// For persistent mode: ensures the fixed directory exists
func (m *Manager) Create() error {
	if m.persistent {
		if err := os.MkdirAll(m.tempDir, 0o750); err != nil {
			return fmt.Errorf("failed to create persistent workspace directory: %w", err)
		}
		m.logger.Info("Using persistent workspace", logfields.Path(m.tempDir))
		return nil
	}

	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return fmt.Errorf("failed to create workspace base directory: %w", err)
	}
	timestamp := time.Now().Format("20060102-150405")
	tempDir, err := os.MkdirTemp(m.baseDir, fmt.Sprintf("dita2docbook-%s-*", timestamp))
	if err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	m.tempDir = tempDir
	m.logger.Info("Created workspace", logfields.Path(tempDir))
	return nil
}

// GetPath returns the path to the workspace directory
func (m *Manager) GetPath() string {
	return m.tempDir
}

// Path returns the absolute location of a slash-separated manifest path inside
// the working tree. Paths escaping the tree are rejected.
func (m *Manager) Path(rel string) (string, error) {
	if m.tempDir == "" {
		return "", fmt.Errorf("workspace not created")
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the working tree", rel)
	}
	return filepath.Join(m.tempDir, clean), nil
}

// EnsureDir creates the parent directory of a manifest path. Concurrent calls
// for the same directory are safe because MkdirAll is idempotent.
func (m *Manager) EnsureDir(rel string) (string, error) {
	p, err := m.Path(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	return p, nil
}

// Cleanup removes the workspace directory
// For persistent mode: does nothing (keeps directory for incremental runs)
// For ephemeral mode: removes the timestamped directory unless retained
func (m *Manager) Cleanup() error {
	if m.tempDir == "" {
		return nil
	}

	if m.persistent || m.retain {
		m.logger.Info("Keeping working tree", logfields.Path(m.tempDir))
		return nil
	}

	if err := os.RemoveAll(m.tempDir); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}

	m.logger.Info("Cleaned up workspace", logfields.Path(m.tempDir))
	m.tempDir = ""
	return nil
}
