package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/atlashq/atlas/internal/watchdog/types"
)

// DefaultProcessConfigs returns the policies written on first run: the
// long-lived Atlas batch fetchers and the transcription runner.
func DefaultProcessConfigs() map[string]types.ProcessConfig {
	return map[string]types.ProcessConfig{
		"article_fetcher": {
			Pattern:           `python.*fetch_articles`,
			MaxRuntimeMinutes: 120,
			MaxCPUPercent:     90,
			MaxMemoryMB:       1024,
			ProgressIndicators: []types.ProgressIndicator{
				{
					Kind:     types.IndicatorDatabase,
					Database: &types.DatabaseIndicator{Path: "data/atlas.db", Table: "articles"},
				},
			},
			RestartCommand:      "python scripts/fetch_articles.py",
			RestartDelaySeconds: 60,
			MaxRestarts:         3,
		},
		"podcast_transcriber": {
			Pattern:           `python.*transcribe`,
			MaxRuntimeMinutes: 360,
			MaxCPUPercent:     95,
			MaxMemoryMB:       4096,
			ProgressIndicators: []types.ProgressIndicator{
				{
					Kind:     types.IndicatorFileGlob,
					FileGlob: &types.FileGlobIndicator{Directory: "data/transcripts", Pattern: "*.txt"},
				},
			},
			RestartDelaySeconds: 120,
			MaxRestarts:         2,
		},
	}
}

// LoadProcessConfigs reads the per-job policy file, creating it with
// defaults when absent.
func LoadProcessConfigs(path string) (map[string]types.ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		configs := DefaultProcessConfigs()
		if err := writeJSONFile(path, configs); err != nil {
			return nil, fmt.Errorf("failed to write default process config: %w", err)
		}
		return configs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read process config: %w", err)
	}

	var configs map[string]types.ProcessConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("invalid process config %s: %w", path, err)
	}
	return configs, nil
}

func writeJSONFile(path string, v interface{}) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
