package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	config "github.com/tupyy/stream-heartbeat/configuration"
	"github.com/tupyy/stream-heartbeat/internal/certificate"
	httpClient "github.com/tupyy/stream-heartbeat/internal/client/http"
	"github.com/tupyy/stream-heartbeat/internal/reporter"
	"github.com/tupyy/stream-heartbeat/internal/scheduler"
	"github.com/tupyy/stream-heartbeat/internal/stats"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// version is set at build time.
var version = "dev"

var (
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:     "stream-heartbeat",
	Short:   "Report the liveness of a media server to an api server",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfiguration(cmd, configFile, envFile); err != nil {
			return err
		}

		return config.Validate()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := setupLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		undo := zap.ReplaceGlobals(logger)
		defer undo()

		reporterConfig := config.GetReporterConfig()
		if !reporterConfig.Enabled {
			zap.S().Info("heartbeat is disabled")
		}

		certManager, err := initCertificateManager(config.GetCARootFile(), config.GetCertificateFile(), config.GetPrivateKey())
		if err != nil {
			return err
		}

		opts := []httpClient.Option{
			httpClient.WithTimeout(reporterConfig.Timeout),
			httpClient.WithUserAgent(fmt.Sprintf("stream-heartbeat/%s", version)),
		}
		if certManager != nil {
			opts = append(opts, httpClient.WithTLS(certManager))
		}

		client, err := httpClient.New(opts...)
		if err != nil {
			return err
		}

		collector := stats.NewCollector(stats.CollectorConfig{
			Version:      version,
			ServerID:     config.GetServerID(),
			NetworkIndex: config.GetNetworkIndex(),
			Listen: stats.Listen{
				RTMP: config.GetListenRTMP(),
				HTTP: config.GetListenHTTP(),
				API:  config.GetListenAPI(),
				SRT:  config.GetListenSRT(),
				RTC:  config.GetListenRTC(),
			},
		}, stats.NopSource{})

		r := reporter.New(reporterConfig, client, collector)

		zap.S().Infow("starting heartbeat",
			"config", reporterConfig.String(),
			"server_id", collector.ServerID(),
			"service_id", collector.ServiceID(),
		)

		s := scheduler.New(reporterConfig.Interval, r.Heartbeat)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s.Start(ctx)

		done := make(chan os.Signal, 1)
		signal.Notify(done, os.Interrupt, syscall.SIGTERM)

		<-done

		shutdown(s, config.GetGracefulShutdownDuration())

		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file loaded at startup if it exists")

	rootCmd.Flags().Bool("enabled", false, "enable the heartbeat")
	rootCmd.Flags().String("url", "http://127.0.0.1:8085/api/v1/servers", "url of the api server")
	rootCmd.Flags().Duration("interval", 10*time.Second, "interval between two heartbeats")
	rootCmd.Flags().String("device-id", "", "device id. defaults to the machine id")
	rootCmd.Flags().Duration("timeout", 5*time.Second, "timeout of a heartbeat request")
	rootCmd.Flags().Bool("summaries", false, "include system and process summaries")
	rootCmd.Flags().Bool("ports", false, "include the listen ports")
	rootCmd.Flags().Int("network-index", 0, "index of the local ip reported")
	rootCmd.Flags().String("server-id", "", "server id. random if empty")
	rootCmd.Flags().StringSlice("listen-rtmp", nil, "rtmp listen addresses")
	rootCmd.Flags().StringSlice("listen-http", nil, "http listen addresses")
	rootCmd.Flags().StringSlice("listen-api", nil, "http api listen addresses")
	rootCmd.Flags().StringSlice("listen-srt", nil, "srt listen addresses")
	rootCmd.Flags().StringSlice("listen-rtc", nil, "webrtc listen addresses")
	rootCmd.Flags().String("ca-root", "", "ca certificate")
	rootCmd.Flags().String("cert", "", "client certificate")
	rootCmd.Flags().String("key", "", "private key")
	rootCmd.Flags().String("log-level", "info", "log level")
	rootCmd.Flags().String("log-file", "", "log file. logs to stdout if empty")
	rootCmd.Flags().Duration("graceful-shutdown", 5*time.Second, "time given to the running heartbeat on shutdown")
}

func shutdown(s *scheduler.Scheduler, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		zap.S().Info("shutdown completed")
	case <-time.After(timeout):
		zap.S().Warnw("shutdown timed out", "timeout", timeout)
	}
}

func setupLogger() (*zap.Logger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "severity",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if atomicLogLevel, err := zap.ParseAtomicLevel(config.GetLogLevel()); err == nil {
		level = atomicLogLevel
	}

	if logFile := config.GetLogFile(); logFile != "" {
		writer := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    config.GetLogMaxSize(),
			MaxBackups: config.GetLogMaxBackups(),
			MaxAge:     config.GetLogMaxAge(),
			Compress:   config.GetLogCompress(),
		}

		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(writer), level)

		return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zap.DPanicLevel)), nil
	}

	loggerCfg := &zap.Config{
		Level:            level,
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	plain, err := loggerCfg.Build(zap.AddStacktrace(zap.DPanicLevel))
	if err != nil {
		return nil, fmt.Errorf("cannot create logger: %w", err)
	}

	return plain, nil
}

// initCertificateManager returns nil when no certificate is configured.
func initCertificateManager(caroot, certFile, keyFile string) (*certificate.Manager, error) {
	if caroot == "" && certFile == "" {
		return nil, nil
	}

	var caRoots [][]byte
	if caroot != "" {
		caRoot, err := os.ReadFile(caroot)
		if err != nil {
			return nil, fmt.Errorf("cannot read ca root '%s': %w", caroot, err)
		}
		caRoots = append(caRoots, caRoot)
	}

	var cert, privateKey []byte
	if certFile != "" {
		var err error

		cert, err = os.ReadFile(certFile)
		if err != nil {
			return nil, fmt.Errorf("cannot read certificate '%s': %w", certFile, err)
		}

		privateKey, err = os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("cannot read private key '%s': %w", keyFile, err)
		}
	}

	certManager, err := certificate.New(caRoots, cert, privateKey)
	if err != nil {
		return nil, err
	}

	zap.S().Infow("tls enabled", "mutual", certManager.HasClientCertificate(), "cn", certManager.CommonName())

	return certManager, nil
}
