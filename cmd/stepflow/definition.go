package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/stepflow/pkg/models"
)

// readDefinition parses a definition file, as YAML when the extension says so
// and as JSON otherwise.
func readDefinition(path string) (*models.AutomationDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return models.ParseDefinitionYAML(data)
	default:
		return models.ParseDefinition(data)
	}
}
