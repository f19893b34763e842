package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressIndicatorUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:  "valid database indicator",
			input: `{"kind":"database","database":{"path":"data/atlas.db","table":"articles"}}`,
		},
		{
			name:  "valid file glob indicator",
			input: `{"kind":"file_glob","file_glob":{"directory":"data/out","pattern":"*.txt"}}`,
		},
		{
			name:    "unknown kind rejected",
			input:   `{"kind":"http_poll","database":{"path":"x","table":"y"}}`,
			wantErr: "unknown progress indicator kind",
		},
		{
			name:    "database indicator without block",
			input:   `{"kind":"database"}`,
			wantErr: "missing database block",
		},
		{
			name:    "database indicator without table",
			input:   `{"kind":"database","database":{"path":"data/atlas.db"}}`,
			wantErr: "requires path and table",
		},
		{
			name:    "file glob without pattern",
			input:   `{"kind":"file_glob","file_glob":{"directory":"data/out"}}`,
			wantErr: "requires pattern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ind ProgressIndicator
			err := json.Unmarshal([]byte(tt.input), &ind)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestProcessConfigUnmarshalValidatesIndicators(t *testing.T) {
	raw := `{
		"pattern": "python.*fetch",
		"max_runtime_minutes": 60,
		"progress_indicators": [{"kind": "carrier_pigeon"}]
	}`

	var cfg ProcessConfig
	err := json.Unmarshal([]byte(raw), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown progress indicator kind")
}

func TestShouldKill(t *testing.T) {
	warned := ProcessStatus{Anomalies: []string{"WARNING: memory 2048MB exceeds ceiling 1024MB"}}
	assert.False(t, warned.ShouldKill())

	doomed := ProcessStatus{Anomalies: []string{
		"WARNING: memory 2048MB exceeds ceiling 1024MB",
		"KILL: runtime 130.0m exceeds max 120m",
	}}
	assert.True(t, doomed.ShouldKill())

	clean := ProcessStatus{}
	assert.False(t, clean.ShouldKill())
}
