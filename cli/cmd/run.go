package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/vkernel/adapter"
	"github.com/justapithecus/vkernel/adapter/redis"
	"github.com/justapithecus/vkernel/adapter/webhook"
	"github.com/justapithecus/vkernel/archive"
	"github.com/justapithecus/vkernel/cli/config"
	"github.com/justapithecus/vkernel/iox"
	"github.com/justapithecus/vkernel/kernel"
	"github.com/justapithecus/vkernel/log"
	"github.com/justapithecus/vkernel/metrics"
	"github.com/justapithecus/vkernel/runner"
	"github.com/justapithecus/vkernel/session"
	"github.com/justapithecus/vkernel/types"
)

// notifyTimeout bounds one notification including retries.
const notifyTimeout = 30 * time.Second

// RunCommand returns the run command. `vkernel run <conn>` and
// `vkernel <conn>` are equivalent.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Serve one kernel session on the sockets named in a connection file",
		ArgsUsage: "<connection_file>",
		Flags:     KernelFlags(),
		Action:    RunAction,
	}
}

// RunAction serves a kernel until a shutdown request, SIGINT or SIGTERM.
func RunAction(c *cli.Context) error {
	connPath := c.Args().First()
	if connPath == "" {
		return cli.Exit("connection file is required (usage: vkernel <connection_file>)", exitFailure)
	}

	cfg, err := resolveConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	conn, err := config.LoadConnection(connPath)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	sessionID := uuid.NewString()
	logger, err := log.NewLogger(log.Options{SessionID: sessionID, Level: cfg.LogLevel})
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	defer func() { _ = logger.Sync() }()
	logger.Sugar().Debugf("loaded connection file %s (transport %s, ip %s)", connPath, conn.Transport, conn.IP)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, conn, cfg, sessionID, logger); err != nil {
		logger.Error("kernel failed", map[string]any{"error": err.Error()})
		return cli.Exit(err.Error(), exitFailure)
	}
	return nil
}

// resolveConfig loads the config file, if any, and applies flag overrides.
func resolveConfig(c *cli.Context) (*config.KernelConfig, error) {
	cfg := &config.KernelConfig{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("toolchain") {
		cfg.Toolchain = c.String("toolchain")
	}
	if c.IsSet("scratch-root") {
		cfg.ScratchRoot = c.String("scratch-root")
	}
	if c.IsSet("timeout") {
		cfg.Timeout.Duration = c.Duration("timeout")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// serve wires one session and its side channels, serves it, then tears
// everything down in dependency order.
func serve(ctx context.Context, conn *types.ConnectionSpec, cfg *config.KernelConfig, sessionID string, logger *log.Logger) error {
	run := runner.New(runner.Config{
		Toolchain: cfg.ToolchainOrDefault(),
		Timeout:   cfg.Timeout.Duration,
	})
	collector := metrics.NewCollector(metrics.Dimensions{
		SessionID:      sessionID,
		Toolchain:      run.Toolchain(),
		ArchiveBackend: cfg.Archive.Backend,
		Adapter:        cfg.Adapter.Type,
	})

	sess, err := session.New(session.Config{
		ID:          sessionID,
		ScratchRoot: cfg.ScratchRoot,
		Runner:      run,
	})
	if err != nil {
		return err
	}
	closers := []io.Closer{sess}
	defer func() {
		if err := iox.CloseAll(closers...); err != nil {
			logger.Warn("shutdown cleanup failed", map[string]any{"error": err.Error()})
		}
	}()

	recorder, err := buildArchive(ctx, cfg.Archive)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if recorder != nil {
		closers = append([]io.Closer{recorder}, closers...)
	}

	var notifier *adapter.Notifier
	publisher, err := buildAdapter(cfg.Adapter)
	if err != nil {
		return fmt.Errorf("adapter: %w", err)
	}
	if publisher != nil {
		notifier = adapter.NewNotifier(publisher, adapter.NotifierConfig{
			Timeout: notifyTimeout,
			OnResult: func(event *adapter.CellExecutedEvent, err error) {
				collector.RecordNotification(err)
				if err != nil {
					logger.Warn("notification failed", map[string]any{
						"execution_count": event.ExecutionCount,
						"error":           err.Error(),
					})
				}
			},
		})
		// Drain notifications before the archive and session go away.
		closers = append([]io.Closer{notifier}, closers...)
	}

	k, err := kernel.New(kernel.Config{
		Connection: *conn,
		Session:    sess,
		Logger:     logger,
		Metrics:    collector,
		Archive:    recorder,
		Notifier:   notifier,
	})
	if err != nil {
		return err
	}

	logger.Info("kernel starting", map[string]any{
		"toolchain":   run.Toolchain(),
		"scratch_dir": sess.ScratchDir(),
		"archive":     cfg.Archive.Backend,
		"adapter":     cfg.Adapter.Type,
		"version":     types.Version,
	})

	serveErr := k.Serve(ctx)
	logger.Info("kernel stopped", collector.Snapshot().Fields())
	return serveErr
}

// buildArchive returns nil when archiving is disabled.
func buildArchive(ctx context.Context, cfg config.ArchiveConfig) (archive.Recorder, error) {
	dataset := cfg.Dataset
	if dataset == "" {
		dataset = archive.DefaultDataset
	}

	switch cfg.Backend {
	case "":
		return nil, nil
	case config.BackendFS:
		r, err := archive.NewFSRecorder(dataset, cfg.Path)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.BackendS3:
		bucket, prefix := archive.ParseS3Path(cfg.Path)
		r, err := archive.NewS3Recorder(ctx, dataset, archive.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}

// buildAdapter returns nil when notifications are disabled.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case config.AdapterWebhook:
		retries := webhook.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		a, err := webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case config.AdapterRedis:
		retries := redis.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		a, err := redis.New(redis.Config{
			URL:           cfg.URL,
			Channel:       cfg.Channel,
			HistoryKey:    cfg.HistoryKey,
			HistoryLength: cfg.HistoryLength,
			Timeout:       cfg.Timeout.Duration,
			Retries:       retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter type %q", cfg.Type)
	}
}
