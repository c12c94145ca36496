// Command grepwise runs the log aggregation and search service.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"net/smtp"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"grepwise/cmd/grepwise/cli"
	"grepwise/internal/alarm"
	"grepwise/internal/archive"
	"grepwise/internal/buffer"
	"grepwise/internal/config"
	"grepwise/internal/index"
	"grepwise/internal/logentry"
	"grepwise/internal/logging"
	"grepwise/internal/notify"
	"grepwise/internal/partition"
	"grepwise/internal/query"
	"grepwise/internal/redact"
	"grepwise/internal/server"
	"grepwise/internal/syslogintake"
	"grepwise/internal/tail"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler)

	rootCmd := &cobra.Command{
		Use:   "grepwise",
		Short: "Log aggregation and search service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			pprofAddr, _ := cmd.Flags().GetString("pprof")
			if pprofAddr != "" {
				go func() {
					logger.Info("pprof server listening", "addr", pprofAddr)
					pprofSrv := &http.Server{Addr: pprofAddr, ReadHeaderTimeout: 10 * time.Second}
					if err := pprofSrv.ListenAndServe(); err != nil {
						logger.Error("pprof server error", "error", err)
					}
				}()
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().String("config-dir", "", "config directory (default: ~/.GrepWise/config, or GW_CONFIG_DIR)")
	rootCmd.PersistentFlags().String("pprof", "", "pprof HTTP server address (e.g. localhost:6060); bind to loopback only")

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the grepwise service",
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			indexRoot, _ := cmd.Flags().GetString("index-root")
			archiveDir, _ := cmd.Flags().GetString("archive-dir")
			jwtSecret, _ := cmd.Flags().GetString("jwt-secret")
			tailPatterns, _ := cmd.Flags().GetStringSlice("tail")
			geoipDB, _ := cmd.Flags().GetString("geoip-db")
			relpAddr, _ := cmd.Flags().GetString("relp-addr")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return run(ctx, logger, configDir, indexRoot, archiveDir, jwtSecret, tailPatterns, geoipDB, relpAddr)
		},
	}
	serverCmd.Flags().String("index-root", "", "index root directory (default: from config.json)")
	serverCmd.Flags().String("archive-dir", "", "local archive directory (default: from config.json)")
	serverCmd.Flags().String("jwt-secret", "", "secret verifying RequestContext bearer tokens (default: GW_JWT_SECRET)")
	serverCmd.Flags().StringSlice("tail", nil, "glob pattern(s) for the file tailer intake path")
	serverCmd.Flags().String("geoip-db", "", "path to a MaxMind GeoLite2 database enriching entries with a remote_ip field")
	serverCmd.Flags().String("relp-addr", "", "listen address for a RELP syslog listener (reliable delivery), e.g. :2514")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(serverCmd, versionCmd, cli.NewAlarmCommand(), cli.NewRedactionCommand(), cli.NewPartitionCommand())

	if err := rootCmd.Execute(); err != nil {
		var cfgErr *configError
		if errors.As(err, &cfgErr) {
			os.Exit(2)
		}
		os.Exit(70)
	}
}

// configError marks a failure in loading or validating on-disk/env
// configuration, distinct from a failure wiring or running a component,
// so main can report GrepWise's documented configuration-error exit code.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func run(ctx context.Context, logger *slog.Logger, configDirFlag, indexRootFlag, archiveDirFlag, jwtSecretFlag string, tailPatterns []string, geoipDB, relpAddr string) error {
	configDir, err := config.DefaultDir(configDirFlag)
	if err != nil {
		return &configError{fmt.Errorf("resolve config directory: %w", err)}
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return &configError{fmt.Errorf("create config directory: %w", err)}
	}
	logger.Info("config directory", "path", configDir)

	cfgStore := config.NewFileStore(configDir)
	cfg, err := cfgStore.Load(ctx)
	if err != nil {
		return &configError{fmt.Errorf("load config: %w", err)}
	}
	if indexRootFlag != "" {
		cfg.IndexRoot = indexRootFlag
	}
	if archiveDirFlag != "" {
		cfg.ArchiveDir = archiveDirFlag
	}
	if host, ok := os.LookupEnv("GW_HOST"); ok {
		cfg.Server.Host = host
	}
	if portStr, ok := os.LookupEnv("GW_HTTP_PORT"); ok {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Server.HTTPPort = port
		}
	}
	if portStr, ok := os.LookupEnv("GW_SYSLOG_PORT"); ok {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Server.SyslogPort = port
		}
	}
	if err := cfgStore.Save(ctx, cfg); err != nil {
		return &configError{fmt.Errorf("save config: %w", err)}
	}

	redactStore := config.NewRedactionStore(configDir)
	redactCfg, err := redactStore.Load(ctx)
	if err != nil {
		return &configError{fmt.Errorf("load redaction config: %w", err)}
	}
	redactor, err := redact.New(redactCfg)
	if err != nil {
		return fmt.Errorf("build redactor: %w", err)
	}

	sourceStore := config.NewSourceStore(configDir)

	registry := logentry.NewRegistry()
	var geoReader *logentry.GeoReader
	if geoipDB != "" {
		geoReader, err = logentry.OpenGeoReader(geoipDB, "remote_ip", "geo_country")
		if err != nil {
			return fmt.Errorf("open geoip database: %w", err)
		}
		defer geoReader.Close()
		logger.Info("geoip enrichment enabled", "db", geoipDB)
	}

	engine := index.NewEngine(cfg.IndexRoot, registry, logger)

	archiveBackend, err := archive.NewLocalBackend(cfg.ArchiveDir)
	if err != nil {
		return fmt.Errorf("open archive backend: %w", err)
	}
	archiveStore := archive.New(archiveBackend, archive.ZstdCodec{}, logger)

	retention := partition.NewCompositeRetentionPolicy(partition.NewMaxAgeRetentionPolicy(90))
	archival := partition.NewAgeArchivePolicy(24 * time.Hour)

	mgr := partition.NewManager(partition.Config{
		Root:                cfg.IndexRoot,
		Granularity:         partition.Daily,
		MaxActivePartitions: 3,
		ReopenCurrentOnly:   true,
		Retention:           retention,
		Archival:            archival,
		Archiver:            archiveStore,
	}, engine, logger)

	executor := query.New(mgr, nil, redactor, logger)
	rawExecutor := query.New(mgr, nil, nil, logger)

	alarmStore := alarm.NewStore()
	sinks := buildNotifySinks()
	scheduler, err := alarm.NewScheduler(alarmStore, alarmExecutorAdapter{executor: executor}, redactor, sinks, logger)
	if err != nil {
		return fmt.Errorf("build alarm scheduler: %w", err)
	}

	buf := buffer.New(1024, 100, time.Second, mgr, logger)
	defer buf.Close()

	var wg sync.WaitGroup
	for i, pattern := range tailPatterns {
		tailer := tail.New(tail.Config{
			SourceName:   fmt.Sprintf("tail-%d", i),
			Patterns:     []string{pattern},
			ScanInterval: 2 * time.Second,
			StateFile:    fmt.Sprintf("%s/tail-%d.state", configDir, i),
		}, buf, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tailer.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("tailer stopped", "error", err)
			}
		}()
	}

	sources, err := sourceStore.List(ctx)
	if err != nil {
		return fmt.Errorf("list log sources: %w", err)
	}
	configuredSyslog := false
	for _, src := range sources {
		if !src.Enabled || src.SourceType != config.SourceTypeSyslog {
			continue
		}
		configuredSyslog = true
		listener := syslogintake.New(syslogintake.Config{
			UDPAddr:    fmt.Sprintf(":%d", src.SyslogPort),
			TCPAddr:    fmt.Sprintf(":%d", src.SyslogPort),
			SourceName: src.Name,
		}, buf, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("syslog listener stopped", "error", err)
			}
		}()
	}
	// GW_SYSLOG_PORT selects the default syslog bind address when no
	// explicit syslog source has been configured via POST /sources.
	if !configuredSyslog && cfg.Server.SyslogPort != 0 {
		listener := syslogintake.New(syslogintake.Config{
			UDPAddr:    fmt.Sprintf(":%d", cfg.Server.SyslogPort),
			TCPAddr:    fmt.Sprintf(":%d", cfg.Server.SyslogPort),
			SourceName: "default",
		}, buf, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("syslog listener stopped", "error", err)
			}
		}()
	}

	if relpAddr != "" {
		relpListener := syslogintake.NewRELP(syslogintake.RELPConfig{
			Addr:       relpAddr,
			SourceName: "relp",
		}, buf, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relpListener.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("relp listener stopped", "error", err)
			}
		}()
	}

	jwtSecret := []byte(jwtSecretFlag)
	if len(jwtSecret) == 0 {
		jwtSecret = []byte(os.Getenv("GW_JWT_SECRET"))
	}

	srv := server.New(buf, executor, rawExecutor, alarmStore, scheduler, redactor, redactStore, sourceStore, server.Config{
		Logger:    logger,
		JWTSecret: jwtSecret,
	})
	srv.SetGeoReader(geoReader)

	var serverWg sync.WaitGroup
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	serverWg.Add(1)
	go func() {
		defer serverWg.Done()
		logger.Info("server listening", "addr", addr)
		if err := srv.ServeTCP(addr); err != nil {
			logger.Error("server error", "error", err)
		}
	}()

	<-ctx.Done()

	logger.Info("stopping server")
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Stop(stopCtx, true); err != nil {
		logger.Error("server stop error", "error", err)
	}
	serverWg.Wait()

	if err := scheduler.Stop(); err != nil {
		logger.Error("scheduler stop error", "error", err)
	}

	wg.Wait()
	logger.Info("shutdown complete")
	return nil
}

// buildNotifySinks wires alarm.Sink instances from GW_* environment
// variables: a sink only exists when its destination is configured. Alarm
// definitions reference these by name in their Channels list.
func buildNotifySinks() map[string]alarm.Sink {
	sinks := map[string]alarm.Sink{}
	if url := os.Getenv("GW_WEBHOOK_URL"); url != "" {
		sinks["webhook"] = notify.NewWebhookSink("webhook", url)
	}
	if smtpAddr := os.Getenv("GW_SMTP_ADDR"); smtpAddr != "" {
		from := os.Getenv("GW_SMTP_FROM")
		to := strings.Split(os.Getenv("GW_SMTP_TO"), ",")
		var auth smtp.Auth
		if user := os.Getenv("GW_SMTP_USER"); user != "" {
			auth = smtp.PlainAuth("", user, os.Getenv("GW_SMTP_PASSWORD"), strings.Split(smtpAddr, ":")[0])
		}
		sinks["email"] = notify.NewEmailSink("email", smtpAddr, auth, from, to)
	}
	return sinks
}
