package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tupyy/stream-heartbeat/internal/entity"
	"go.uber.org/zap"
)

const (
	prefix = "SRS_HEARTBEAT"
	appID  = "stream-heartbeat"

	enabled      = "enabled"
	endpoint     = "url"
	interval     = "interval"
	deviceID     = "device_id"
	timeout      = "timeout"
	summaries    = "summaries"
	ports        = "ports"
	networkIndex = "network_index"
	serverID     = "server_id"

	listenRTMP = "listen_rtmp"
	listenHTTP = "listen_http"
	listenAPI  = "listen_api"
	listenSRT  = "listen_srt"
	listenRTC  = "listen_rtc"

	caRoot     = "ca_root"
	certFile   = "cert"
	privateKey = "key"

	logLevel      = "log_level"
	logFile       = "log_file"
	logMaxSize    = "log_max_size"
	logMaxBackups = "log_max_backups"
	logMaxAge     = "log_max_age"
	logCompress   = "log_compress"

	gracefulShutdown = "graceful_shutdown"

	defaultEndpoint         = "http://127.0.0.1:8085/api/v1/servers"
	defaultInterval         = 10 * time.Second
	defaultHttpTimeout      = 5 * time.Second
	defaultGracefulShutdown = 5 * time.Second
	defaultLogLevel         = "info"
	defaultLogMaxSize       = 100
	defaultLogMaxBackups    = 3
	defaultLogMaxAge        = 28
)

var ErrInvalidConfiguration = errors.New("invalid configuration")

var v *viper.Viper

func init() {
	v = newViper()
}

func newViper() *viper.Viper {
	nv := viper.New()

	nv.SetEnvPrefix(prefix)
	nv.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	nv.AutomaticEnv() // read in environment variables that match

	nv.SetDefault(enabled, false)
	nv.SetDefault(endpoint, defaultEndpoint)
	nv.SetDefault(interval, defaultInterval)
	nv.SetDefault(timeout, defaultHttpTimeout)
	nv.SetDefault(summaries, false)
	nv.SetDefault(ports, false)
	nv.SetDefault(networkIndex, 0)
	nv.SetDefault(logLevel, defaultLogLevel)
	nv.SetDefault(logMaxSize, defaultLogMaxSize)
	nv.SetDefault(logMaxBackups, defaultLogMaxBackups)
	nv.SetDefault(logMaxAge, defaultLogMaxAge)
	nv.SetDefault(gracefulShutdown, defaultGracefulShutdown)

	return nv
}

// InitConfiguration loads the env file (if it exists), the config file (if any) and binds the flags of cmd.
// Precedence: flag, environment, config file, default.
func InitConfiguration(cmd *cobra.Command, configFile, envFile string) error {
	v = newViper()

	if len(envFile) > 0 {
		// existing variables are not overridden
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cannot load env file '%s': %w", envFile, err)
		}
	}

	if len(configFile) > 0 {
		v.SetConfigFile(configFile)

		err := v.ReadInConfig()
		if err != nil {
			zap.S().Errorw("cannot read config file", "error", err, "config file", configFile)
			return fmt.Errorf("fail to read config file '%s': %w", configFile, err)
		}

		zap.S().Infof("using config file: %v", v.ConfigFileUsed())
	}

	// Bind the current command's flags to viper
	return bindFlags(cmd, v)
}

// Bind each cobra flag to its associated viper configuration (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var bindErr error

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// replace - with _ to match yaml format
		key := strings.ReplaceAll(f.Name, "-", "_")

		// Only changed flags take precedence. Defaults are held by viper.
		if !f.Changed {
			return
		}

		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("cannot bind flag '%s': %w", f.Name, err)
		}
	})

	return bindErr
}

// Validate checks the heartbeat configuration. Nothing is checked when the heartbeat is disabled.
func Validate() error {
	if !IsHeartbeatEnabled() {
		return nil
	}

	u, err := url.Parse(GetHeartbeatURL())
	if err != nil {
		return fmt.Errorf("%w: url '%s': %s", ErrInvalidConfiguration, GetHeartbeatURL(), err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url '%s' must be http or https", ErrInvalidConfiguration, GetHeartbeatURL())
	}

	if u.Host == "" {
		return fmt.Errorf("%w: url '%s' has no host", ErrInvalidConfiguration, GetHeartbeatURL())
	}

	if v.GetDuration(interval) <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfiguration)
	}

	if v.GetDuration(timeout) <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfiguration)
	}

	if (GetCertificateFile() == "") != (GetPrivateKey() == "") {
		return fmt.Errorf("%w: cert and key must be set together", ErrInvalidConfiguration)
	}

	return nil
}

// GetReporterConfig returns the configuration of the heartbeat reporter.
func GetReporterConfig() entity.ReporterConfig {
	return entity.ReporterConfig{
		Enabled:   IsHeartbeatEnabled(),
		Endpoint:  GetHeartbeatURL(),
		Interval:  GetHeartbeatInterval(),
		DeviceID:  GetDeviceID(),
		Timeout:   GetHttpRequestTimeout(),
		Summaries: v.GetBool(summaries),
		Ports:     v.GetBool(ports),
	}
}

func IsHeartbeatEnabled() bool {
	return v.GetBool(enabled)
}

func GetHeartbeatURL() string {
	return v.GetString(endpoint)
}

func GetHeartbeatInterval() time.Duration {
	if d := v.GetDuration(interval); d > 0 {
		return d
	}

	return defaultInterval
}

func GetHttpRequestTimeout() time.Duration {
	if d := v.GetDuration(timeout); d > 0 {
		return d
	}

	return defaultHttpTimeout
}

func GetGracefulShutdownDuration() time.Duration {
	if d := v.GetDuration(gracefulShutdown); d > 0 {
		return d
	}

	return defaultGracefulShutdown
}

func GetDeviceID() string {
	if !v.IsSet(deviceID) || v.GetString(deviceID) == "" {
		id, err := machineid.ProtectedID(appID)
		if err != nil {
			zap.S().Debugw("cannot read machine id. using a random device id", "error", err)
			id = uuid.New().String()
		}

		// save id for the next call
		v.Set(deviceID, id)

		return id
	}

	return v.GetString(deviceID)
}

func GetServerID() string {
	return v.GetString(serverID)
}

func GetNetworkIndex() int {
	return v.GetInt(networkIndex)
}

func GetListenRTMP() []string {
	return getList(listenRTMP)
}

func GetListenHTTP() []string {
	return getList(listenHTTP)
}

func GetListenAPI() []string {
	return getList(listenAPI)
}

func GetListenSRT() []string {
	return getList(listenSRT)
}

func GetListenRTC() []string {
	return getList(listenRTC)
}

func GetCARootFile() string {
	return v.GetString(caRoot)
}

func GetCertificateFile() string {
	return v.GetString(certFile)
}

func GetPrivateKey() string {
	return v.GetString(privateKey)
}

func GetLogLevel() string {
	return v.GetString(logLevel)
}

// GetLogFile returns the path of the log file. Empty means stdout.
func GetLogFile() string {
	return v.GetString(logFile)
}

func GetLogMaxSize() int {
	return v.GetInt(logMaxSize)
}

func GetLogMaxBackups() int {
	return v.GetInt(logMaxBackups)
}

func GetLogMaxAge() int {
	return v.GetInt(logMaxAge)
}

func GetLogCompress() bool {
	return v.GetBool(logCompress)
}

// getList reads a list from a flag, a config file or a comma separated environment variable.
func getList(key string) []string {
	var values []string

	switch val := v.Get(key).(type) {
	case nil:
		return nil
	case string:
		values = strings.Split(val, ",")
	case []string:
		values = val
	default:
		values = v.GetStringSlice(key)
	}

	result := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			result = append(result, value)
		}
	}

	return result
}
