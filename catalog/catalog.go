package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sammcj/llmem/logging"
)

// ReloadDebounce is how long Watch waits after the last file event before reloading.
const ReloadDebounce = 250 * time.Millisecond

// ModelConfig is a HuggingFace config.json kept as decoded, so every field can be shown back to clients.
type ModelConfig map[string]any

// Lookup is the read side of a model catalog.
type Lookup interface {
	Get(name string) (ModelConfig, bool)
	Names() []string
}

type snapshot struct {
	models map[string]ModelConfig
	names  []string
}

// Catalog is a directory of model config files, keyed by file name without the .json extension.
// Readers see an immutable snapshot; Reload and Watch swap in a new one.
type Catalog struct {
	dir     string
	current atomic.Pointer[snapshot]
}

// Load reads every *.json file in dir. Files that fail to parse are logged and skipped.
func Load(dir string) (*Catalog, error) {
	c := &Catalog{dir: dir}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Static builds a catalog from in-memory configs, mostly useful in tests.
func Static(models map[string]ModelConfig) *Catalog {
	c := &Catalog{}
	c.current.Store(newSnapshot(models))
	return c
}

func newSnapshot(models map[string]ModelConfig) *snapshot {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)
	return &snapshot{models: models, names: names}
}

func (c *Catalog) Dir() string {
	return c.dir
}

func (c *Catalog) Reload() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("failed to read models directory %s: %w", c.dir, err)
	}

	models := make(map[string]ModelConfig, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		cfg, err := readModelConfig(path)
		if err != nil {
			logging.ErrorLogger.Error().Err(err).Str("file", path).Msg("Skipping model config")
			continue
		}
		models[strings.TrimSuffix(entry.Name(), ".json")] = cfg
	}

	c.current.Store(newSnapshot(models))
	logging.DebugLogger.Debug().Str("dir", c.dir).Int("models", len(models)).Msg("Loaded model catalog")
	return nil
}

func readModelConfig(path string) (ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg ModelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode model config: %w", err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("model config is empty")
	}
	return cfg, nil
}

func (c *Catalog) Get(name string) (ModelConfig, bool) {
	cfg, ok := c.current.Load().models[name]
	return cfg, ok
}

// Names returns the model names in sorted order.
func (c *Catalog) Names() []string {
	names := c.current.Load().names
	out := make([]string, len(names))
	copy(out, names)
	return out
}

func (c *Catalog) Len() int {
	return len(c.current.Load().names)
}

// Watch reloads the catalog whenever a config file in the directory changes, until ctx is done.
// onReload, when set, is called with the new model count after every reload.
func (c *Catalog) Watch(ctx context.Context, onReload func(count int)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", c.dir, err)
	}

	go func() {
		defer watcher.Close()
		var debounceTimer *time.Timer

		for {
			select {
			case <-ctx.Done():
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, ".json") || event.Op == fsnotify.Chmod {
					continue
				}
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(ReloadDebounce, func() {
					if err := c.Reload(); err != nil {
						logging.ErrorLogger.Error().Err(err).Msg("Failed to reload model catalog")
						return
					}
					logging.InfoLogger.Info().Int("models", c.Len()).Msg("Model catalog reloaded")
					if onReload != nil {
						onReload(c.Len())
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.ErrorLogger.Error().Err(err).Msg("Watcher error")
			}
		}
	}()

	return nil
}
