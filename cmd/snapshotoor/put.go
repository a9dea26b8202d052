package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/docker/go-units"
	"github.com/ethpandaops/snapshotoor/pkg/compress"
	"github.com/ethpandaops/snapshotoor/pkg/config"
	"github.com/ethpandaops/snapshotoor/pkg/manifest"
	"github.com/ethpandaops/snapshotoor/pkg/storage"
	"github.com/ethpandaops/snapshotoor/pkg/uploader"
	"github.com/spf13/cobra"
)

var (
	putManifest        string
	putBucket          string
	putBasePath        string
	putRegion          string
	putEndpointURL     string
	putAccessKeyID     string
	putSecretAccessKey string
	putForcePathStyle  bool
	putEncrypt         bool
	putBufSize         string
	putConcurrency     int
	putCodec           string
	putBandwidth       string
)

var putCmd = &cobra.Command{
	Use:   "put",
	Short: "Upload the files listed in a manifest to object storage",
	Long: `Upload every file listed in the manifest to the bucket, compressing
each file in a streaming fashion and splitting it into multipart chunks.
Exits non-zero if at least one file did not make it to storage.`,
	RunE: runPut,
}

func init() {
	rootCmd.AddCommand(putCmd)

	putCmd.Flags().StringVar(&putManifest, "manifest", "",
		"Path to the manifest containing the files to upload")
	putCmd.Flags().StringVar(&putBucket, "bucket", "",
		"Destination bucket name")
	putCmd.Flags().StringVar(&putBasePath, "base-path", "",
		"Key prefix prepended to every destination key")
	putCmd.Flags().StringVar(&putRegion, "region", "",
		"Bucket region")
	putCmd.Flags().StringVar(&putEndpointURL, "endpoint-url", "",
		"Custom S3-compatible endpoint URL")
	putCmd.Flags().StringVar(&putAccessKeyID, "access-key-id", "",
		"Static access key ID (defaults to the SDK credential chain)")
	putCmd.Flags().StringVar(&putSecretAccessKey, "secret-access-key", "",
		"Static secret access key")
	putCmd.Flags().BoolVar(&putForcePathStyle, "force-path-style", false,
		"Use path-style bucket addressing")
	putCmd.Flags().BoolVar(&putEncrypt, "ssenc", false,
		"Enable server-side encryption for uploaded objects")
	putCmd.Flags().StringVar(&putBufSize, "bufsize", "64MB",
		"Compress and upload chunk size")
	putCmd.Flags().IntVar(&putConcurrency, "concurrency", 0,
		"Concurrent uploads (default: available CPUs minus one)")
	putCmd.Flags().StringVar(&putCodec, "codec", config.DefaultCodec,
		"Compression codec (lzop, zstd or none)")
	putCmd.Flags().StringVar(&putBandwidth, "bandwidth", "",
		"Upload bandwidth cap in bytes per second (e.g. 100MB, default unlimited)")

	_ = putCmd.MarkFlagRequired("manifest")
	_ = putCmd.MarkFlagRequired("bucket")
}

func runPut(cmd *cobra.Command, args []string) error {
	cfg, err := buildUploadConfig()
	if err != nil {
		return err
	}

	codec, err := compress.ParseCodec(cfg.Codec)
	if err != nil {
		return err
	}

	if codec == compress.CodecLZOP {
		if err := compress.CheckBinary(); err != nil {
			return fmt.Errorf("codec %q unavailable: %w", codec, err)
		}
	}

	files, err := manifest.Read(cfg.Manifest)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		log.WithField("manifest", cfg.Manifest).Warn("Manifest is empty, nothing to upload")

		return nil
	}

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	store := storage.NewS3Store(log, cfg)

	// Fail fast: verify the bucket is reachable and writable before
	// spending time on compression.
	if err := store.Preflight(ctx); err != nil {
		return fmt.Errorf("storage preflight check failed: %w", err)
	}

	orch := uploader.New(log, &uploader.Config{
		Store:       store,
		Codec:       codec,
		BasePath:    cfg.BasePath,
		Encrypt:     cfg.Encrypt,
		ChunkSize:   cfg.BufferSize,
		Concurrency: cfg.Concurrency,
		Incremental: cfg.Incremental,
		Bandwidth:   cfg.Bandwidth,
		Retry: uploader.Policy{
			MaxAttempts: cfg.MaxAttempts,
			Interval:    cfg.RetryInterval,
		},
		PartTimeout: cfg.PartTimeout,
	})

	log.WithField("files", len(files)).Info("Starting upload")

	if err := orch.Run(ctx, files); err != nil {
		return err
	}

	log.Info("Upload completed successfully")

	return nil
}

// buildUploadConfig assembles the upload configuration from CLI flags.
func buildUploadConfig() (*config.UploadConfig, error) {
	bufSize, err := units.RAMInBytes(putBufSize)
	if err != nil {
		return nil, fmt.Errorf("invalid bufsize %q: %w", putBufSize, err)
	}

	var bandwidth int64

	if putBandwidth != "" {
		bandwidth, err = units.RAMInBytes(putBandwidth)
		if err != nil {
			return nil, fmt.Errorf("invalid bandwidth %q: %w", putBandwidth, err)
		}
	}

	cfg := &config.UploadConfig{
		Bucket:          putBucket,
		Region:          putRegion,
		EndpointURL:     putEndpointURL,
		AccessKeyID:     putAccessKeyID,
		SecretAccessKey: putSecretAccessKey,
		ForcePathStyle:  putForcePathStyle,
		BasePath:        putBasePath,
		Encrypt:         putEncrypt,
		Manifest:        putManifest,
		Codec:           putCodec,
		BufferSize:      bufSize,
		Concurrency:     putConcurrency,
		Bandwidth:       bandwidth,
		Incremental:     incremental,
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}
