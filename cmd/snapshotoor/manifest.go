package main

import (
	"fmt"

	"github.com/ethpandaops/snapshotoor/pkg/config"
	"github.com/ethpandaops/snapshotoor/pkg/manifest"
	"github.com/spf13/cobra"
)

var (
	manifestSnapshotName string
	manifestConfPath     string
	manifestPath         string
	manifestKeyspaces    string
	manifestTable        string
)

var createManifestCmd = &cobra.Command{
	Use:   "create-upload-manifest",
	Short: "Write the upload manifest for a snapshot",
	Long: `Resolve the data directories from the Cassandra configuration and
write one line per snapshot file to the manifest. With
--incremental-backups the incremental "backups" directories are listed
instead of a named snapshot.`,
	RunE: runCreateManifest,
}

func init() {
	rootCmd.AddCommand(createManifestCmd)

	createManifestCmd.Flags().StringVar(&manifestSnapshotName, "snapshot-name", "",
		"Name of the snapshot to back up")
	createManifestCmd.Flags().StringVar(&manifestConfPath, "conf-path", "",
		"Directory containing cassandra.yaml")
	createManifestCmd.Flags().StringVar(&manifestPath, "manifest-path", "",
		"Path of the manifest file to write")
	createManifestCmd.Flags().StringVar(&manifestKeyspaces, "keyspaces", "",
		"Space-separated keyspace globs (default: all keyspaces)")
	createManifestCmd.Flags().StringVar(&manifestTable, "table", "",
		"Table glob (default: all tables)")

	_ = createManifestCmd.MarkFlagRequired("conf-path")
	_ = createManifestCmd.MarkFlagRequired("manifest-path")
}

func runCreateManifest(cmd *cobra.Command, args []string) error {
	cfg := &config.ManifestConfig{
		SnapshotName: manifestSnapshotName,
		ConfPath:     manifestConfPath,
		ManifestPath: manifestPath,
		Keyspaces:    manifestKeyspaces,
		Table:        manifestTable,
		Incremental:  incremental,
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	dataDirs, err := config.DataFileDirectories(cfg.ConfPath)
	if err != nil {
		return err
	}

	log.WithField("data_dirs", dataDirs).Debug("Resolved data directories")

	if err := manifest.Build(log, cfg, dataDirs); err != nil {
		return err
	}

	return nil
}
