// Package manifest builds and reads the upload manifest: a plain text
// file with one absolute source path per line.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ethpandaops/snapshotoor/pkg/config"
	"github.com/sirupsen/logrus"
)

// Build resolves the snapshot (or incremental backups) directories under
// the given data directories and writes the matching files to the
// manifest path. Paths are recorded in directory traversal order, with
// no dedup or sorting beyond it.
func Build(log logrus.FieldLogger, cfg *config.ManifestConfig, dataDirs []string) error {
	keyspaceGlobs := strings.Fields(cfg.Keyspaces)
	if len(keyspaceGlobs) == 0 {
		keyspaceGlobs = []string{"*"}
	}

	tableGlob := cfg.Table
	if tableGlob == "" {
		tableGlob = "*"
	}

	var files []string

	for _, dataDir := range dataDirs {
		for _, keyspaceGlob := range keyspaceGlobs {
			glob := pattern(dataDir, keyspaceGlob, tableGlob, cfg)

			matches, err := doublestar.FilepathGlob(glob)
			if err != nil {
				return fmt.Errorf("globbing %q: %w", glob, err)
			}

			files = append(files, matches...)
		}
	}

	log.WithFields(logrus.Fields{
		"files":    len(files),
		"manifest": cfg.ManifestPath,
	}).Info("Writing upload manifest")

	content := strings.Join(files, "\n")
	if err := os.WriteFile(cfg.ManifestPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing manifest %s: %w", cfg.ManifestPath, err)
	}

	return nil
}

// pattern assembles the glob for one data directory and keyspace glob.
func pattern(dataDir, keyspaceGlob, tableGlob string, cfg *config.ManifestConfig) string {
	parts := []string{dataDir, keyspaceGlob, tableGlob}

	if cfg.Incremental {
		parts = append(parts, "backups")
	} else {
		parts = append(parts, "snapshots", cfg.SnapshotName)
	}

	parts = append(parts, "*")

	return filepath.Join(parts...)
}

// Read returns the manifest's source paths in file order, skipping
// blank lines.
func Read(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var files []string

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		files = append(files, line)
	}

	return files, nil
}
