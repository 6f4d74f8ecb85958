package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/moddengine/devstock/internal/stock"
	"gopkg.in/yaml.v3"
)

// BuiltinKeys are the fallback API keys used when no override is set.
// Release builds fill them with -ldflags "-X".
var (
	BuiltinUnsplashKey string
	BuiltinPexelsKey   string
	BuiltinPixabayKey  string
)

// Settings are the user-editable options read on every use.
type Settings struct {
	DefaultProvider string `yaml:"defaultProvider" split_words:"true"`
	UnsplashAPIKey  string `yaml:"unsplashApiKey" split_words:"true"`
	PexelsAPIKey    string `yaml:"pexelsApiKey" split_words:"true"`
	PixabayAPIKey   string `yaml:"pixabayApiKey" split_words:"true"`
	EnableTrigger   bool   `yaml:"enableTrigger" split_words:"true"`
	TriggerPattern  string `yaml:"triggerPattern" split_words:"true"`
	DownloadPath    string `yaml:"downloadPath" split_words:"true"`
}

func DefaultSettings() Settings {
	return Settings{
		DefaultProvider: string(stock.Unsplash),
		EnableTrigger:   true,
		TriggerPattern:  "{/img}",
		DownloadPath:    "images",
	}
}

// Provider returns the preferred provider, falling back to unsplash when
// the configured name is unset or not one we know.
func (s Settings) Provider() stock.Provider {
	p, err := stock.ParseProvider(strings.TrimSpace(s.DefaultProvider))
	if err != nil {
		return stock.Unsplash
	}
	return p
}

// APIKey resolves the key for p: a non-blank override wins over the
// built-in fallback.
func (s Settings) APIKey(p stock.Provider) string {
	switch p {
	case stock.Unsplash:
		return ResolveKey(s.UnsplashAPIKey, BuiltinUnsplashKey)
	case stock.Pexels:
		return ResolveKey(s.PexelsAPIKey, BuiltinPexelsKey)
	case stock.Pixabay:
		return ResolveKey(s.PixabayAPIKey, BuiltinPixabayKey)
	}
	return ""
}

func ResolveKey(override string, builtin string) string {
	if key := strings.TrimSpace(override); key != "" {
		return key
	}
	return strings.TrimSpace(builtin)
}

// String renders the settings with keys redacted.
func (s Settings) String() string {
	return fmt.Sprintf(`DevStock Settings:
  Default Provider: %s
  Unsplash API Key: %s
  Pexels API Key: %s
  Pixabay API Key: %s
  Enable Trigger: %v
  Trigger Pattern: %s
  Download Path: %s`,
		s.Provider(),
		redactAPIKey(s.APIKey(stock.Unsplash)),
		redactAPIKey(s.APIKey(stock.Pexels)),
		redactAPIKey(s.APIKey(stock.Pixabay)),
		s.EnableTrigger,
		s.TriggerPattern,
		s.DownloadPath,
	)
}

func redactAPIKey(value string) string {
	if value == "" {
		return "(not configured)"
	}
	if len(value) > 8 {
		return value[:8] + "..."
	}
	return "***"
}

// Source hands out the current settings. Implementations must not cache
// across edits: a changed setting is visible on the next call.
type Source interface {
	Settings() Settings
}

// StaticSource always returns the same settings.
type StaticSource Settings

func (s StaticSource) Settings() Settings {
	return Settings(s)
}

// FileSource reads a yaml settings file and overlays DEVSTOCK_* variables.
// The file is re-parsed whenever its size or modification time changes.
type FileSource struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	size    int64
	file    Settings
	loaded  bool
	lastErr error
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Path() string {
	return f.path
}

// Err reports the last error seen reading the file, if any.
func (f *FileSource) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

func (f *FileSource) Settings() Settings {
	f.mu.Lock()
	s := f.readFile()
	f.mu.Unlock()

	if err := envconfig.Process("devstock", &s); err != nil {
		f.mu.Lock()
		f.lastErr = fmt.Errorf("failed to read environment: %w", err)
		f.mu.Unlock()
	}
	return s
}

func (f *FileSource) readFile() Settings {
	info, err := os.Stat(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.lastErr = fmt.Errorf("failed to stat settings file: %w", err)
		}
		f.loaded = false
		return DefaultSettings()
	}
	if f.loaded && info.ModTime().Equal(f.modTime) && info.Size() == f.size {
		return f.file
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		f.lastErr = fmt.Errorf("failed to read settings file: %w", err)
		return DefaultSettings()
	}
	s := DefaultSettings()
	if err := yaml.Unmarshal(data, &s); err != nil {
		f.lastErr = fmt.Errorf("failed to parse settings file: %w", err)
		return DefaultSettings()
	}
	f.file = s
	f.modTime = info.ModTime()
	f.size = info.Size()
	f.loaded = true
	f.lastErr = nil
	return s
}

// Save writes s to path as yaml.
func Save(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to serialize settings: %w", err)
	}
	content := "# DevStock settings\n\n" + string(data)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}
