package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDefinition(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr bool
	}{
		{
			name:    "json",
			file:    "archive.json",
			content: `{"id":"archive","name":"Archive","trigger":{"type":"APP"},"steps":[]}`,
		},
		{
			name:    "yaml",
			file:    "archive.yaml",
			content: "id: archive\nname: Archive\ntrigger:\n  type: APP\nsteps: []\n",
		},
		{
			name:    "yaml written as json",
			file:    "broken.json",
			content: "id: archive\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			def, err := readDefinition(path)
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, "archive", def.ID)
			assert.Equal(t, "Archive", def.Name)
		})
	}

	_, err := readDefinition(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
