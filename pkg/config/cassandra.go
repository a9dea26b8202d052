package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// cassandraConfig is the subset of cassandra.yaml this tool reads.
type cassandraConfig struct {
	DataFileDirectories []string `yaml:"data_file_directories"`
}

// DataFileDirectories reads cassandra.yaml from confPath and returns the
// configured data_file_directories list.
func DataFileDirectories(confPath string) ([]string, error) {
	path := filepath.Join(confPath, "cassandra.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cassandra config: %w", err)
	}

	var cfg cassandraConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if len(cfg.DataFileDirectories) == 0 {
		return nil, fmt.Errorf("no data_file_directories configured in %s", path)
	}

	return cfg.DataFileDirectories, nil
}
