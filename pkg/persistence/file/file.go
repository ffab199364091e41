// Package file provides file-based persistence of automation definitions.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

const automationsDir = "automations"

// Persistence implements the persistence.Persistence interface using the file system.
// Definitions live under <root>/automations as <id>.json, <id>.yaml or <id>.yml.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	return &Persistence{root: strings.Replace(root, "file://", "", 1)}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) dir() string {
	return filepath.Join(fp.root, automationsDir)
}

// Automations returns every stored definition sorted by id.
func (fp *Persistence) Automations(_ context.Context) ([]*models.AutomationDefinition, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	entries, err := os.ReadDir(fp.dir())
	if errors.Is(err, fs.ErrNotExist) {
		return make([]*models.AutomationDefinition, 0), nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list automation files: %w", err)
	}

	automations := make([]*models.AutomationDefinition, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}

		automation, err := fp.load(filepath.Join(fp.dir(), entry.Name()))
		if err != nil {
			return nil, err
		}

		automations = append(automations, automation)
	}

	slices.SortFunc(automations, func(a, b *models.AutomationDefinition) int {
		return strings.Compare(a.ID, b.ID)
	})

	return automations, nil
}

func (fp *Persistence) AutomationByID(_ context.Context, id string) (*models.AutomationDefinition, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	path, ok := fp.find(id)
	if !ok {
		return nil, persistence.NewAutomationError("AutomationByID", id, persistence.ErrAutomationNotFound)
	}

	return fp.load(path)
}

// SaveAutomation writes the definition as JSON, replacing any earlier file for the id.
func (fp *Persistence) SaveAutomation(_ context.Context, automation *models.AutomationDefinition) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if err := os.MkdirAll(fp.dir(), 0o750); err != nil {
		return fmt.Errorf("failed to create automations directory: %w", err)
	}

	data, err := json.MarshalIndent(automation, "", "  ")
	if err != nil {
		return persistence.NewAutomationError("SaveAutomation", automation.ID, err)
	}

	if old, ok := fp.find(automation.ID); ok && filepath.Ext(old) != ".json" {
		if err := os.Remove(old); err != nil {
			return persistence.NewAutomationError("SaveAutomation", automation.ID, err)
		}
	}

	path := filepath.Join(fp.dir(), automation.ID+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return persistence.NewAutomationError("SaveAutomation", automation.ID, err)
	}

	return nil
}

func (fp *Persistence) DeleteAutomation(_ context.Context, id string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	path, ok := fp.find(id)
	if !ok {
		return persistence.NewAutomationError("DeleteAutomation", id, persistence.ErrAutomationNotFound)
	}

	if err := os.Remove(path); err != nil {
		return persistence.NewAutomationError("DeleteAutomation", id, err)
	}

	return nil
}

func (fp *Persistence) find(id string) (string, bool) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return "", false
	}

	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(fp.dir(), id+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}

	return "", false
}

func (fp *Persistence) load(path string) (*models.AutomationDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var automation *models.AutomationDefinition
	if filepath.Ext(path) == ".json" {
		automation, err = models.ParseDefinition(data)
	} else {
		automation, err = models.ParseDefinitionYAML(data)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", persistence.ErrInvalidAutomation, path, err)
	}

	return automation, nil
}

func isDefinitionFile(name string) bool {
	switch filepath.Ext(name) {
	case ".json", ".yaml", ".yml":
		return true
	}

	return false
}
