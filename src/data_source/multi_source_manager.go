package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"volume-observer/src/interfaces"
	"volume-observer/src/logger"
	"volume-observer/src/models"
)

// MultiSourceManager aggregates multiple IVolumeSource instances
type MultiSourceManager struct {
	Sources map[string]interfaces.IVolumeSource
	Logger  *logger.Logger
	mu      sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMultiSourceManager(sources []interfaces.IVolumeSource, log *logger.Logger) *MultiSourceManager {
	m := &MultiSourceManager{
		Sources: make(map[string]interfaces.IVolumeSource),
		Logger:  log,
	}

	for _, s := range sources {
		m.Sources[s.Name()] = s
	}

	return m
}

// NewSourceFromConfig picks the reader for the configured file format.
func NewSourceFromConfig(cfg *models.MDataSourceConfig, log *logger.Logger) (interfaces.IVolumeSource, error) {
	switch cfg.Format {
	case "csv", "ticks":
		return NewCSVSource(cfg, log), nil
	case "xlsx":
		return NewXLSXSource(cfg, log), nil
	}
	return nil, fmt.Errorf("unsupported data source format: %s", cfg.Format)
}

// -----------------------------------------------------------------------------

// AddSource registers a new source
func (m *MultiSourceManager) AddSource(source interfaces.IVolumeSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := source.Name()
	if _, exists := m.Sources[name]; exists {
		return fmt.Errorf("source %s already exists", name)
	}

	m.Sources[name] = source
	m.Logger.Info("Added source: %s", name)
	return nil
}

// -----------------------------------------------------------------------------

// RemoveSource removes a source
func (m *MultiSourceManager) RemoveSource(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.Sources[name]; !exists {
		return fmt.Errorf("source %s not found", name)
	}
	delete(m.Sources, name)
	m.Logger.Info("Removed source: %s", name)
	return nil
}

// -----------------------------------------------------------------------------

// GetAllSources returns a snapshot ordered by name
func (m *MultiSourceManager) GetAllSources() []interfaces.IVolumeSource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.Sources))
	for name := range m.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]interfaces.IVolumeSource, len(names))
	for i, name := range names {
		out[i] = m.Sources[name]
	}
	return out
}

// -----------------------------------------------------------------------------

func (m *MultiSourceManager) Name() string {
	return "MultiSourceManager"
}

// -----------------------------------------------------------------------------

// Load fans out to all sources and merges results. A failing source is
// logged and skipped; when two sources hold the same symbol the one whose
// name sorts last wins.
func (m *MultiSourceManager) Load(ctx context.Context, symbols []string) (map[string]*models.MVolumeMatrix, error) {
	sources := m.GetAllSources()
	partial := make([]map[string]*models.MVolumeMatrix, len(sources))
	var wg sync.WaitGroup

	for i, src := range sources {
		wg.Add(1)
		go func(i int, s interfaces.IVolumeSource) {
			defer wg.Done()
			data, err := s.Load(ctx, symbols)
			if err != nil {
				m.Logger.Error("Source %s failed to load: %v", s.Name(), err)
				return
			}
			partial[i] = data
		}(i, src)
	}
	wg.Wait()

	results := make(map[string]*models.MVolumeMatrix)
	for i, data := range partial {
		for sym, grid := range data {
			if _, dup := results[sym]; dup {
				m.Logger.Warning("Symbol %s loaded by several sources; using %s", sym, sources[i].Name())
			}
			results[sym] = grid
		}
	}
	if len(results) == 0 && len(sources) > 0 {
		return nil, fmt.Errorf("no source returned data")
	}
	return results, nil
}
