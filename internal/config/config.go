package config

import (
	"os"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

const (
	envThreadPoolSize    = "CACHE_PROXY_THREAD_POOL_SIZE"
	envCacheExpiredMs    = "CACHE_PROXY_CACHE_EXPIRED_TIME_MS"
	envLogLevel          = "CACHE_PROXY_LOG_LEVEL"
	defaultThreadPool    = 1
	defaultCacheExpiryMs = 24 * 60 * 60 * 1000
	defaultLogLevel      = "info"

	defaultCacheCapacity   = 100
	defaultCacheBuckets    = 100
	defaultQueueCapacity   = 100
	defaultListenBacklog   = 10
	defaultAcceptTimeoutMs = 1000
	defaultIOTimeoutMs     = 60000
	defaultBufferSize      = 4096
)

// Config is the fully-resolved startup configuration for one proxy
// process, combining the CLI port argument with the environment
// variables the system recognizes.
type Config struct {
	Port               int
	AdminAddr          string // empty disables the admin surface
	ThreadPoolSize     int
	CacheExpiryMs      int64
	LogLevel           string
	CacheCapacity      int
	CacheBucketCount   int
	QueueCapacity      int
	ListenBacklog      int
	AcceptTimeoutMs    int
	IOTimeoutMs        int
	BufferSize         int
}

// Default returns a Config populated with every default named in the
// external interface, with Port left at 0 (callers must set it from
// the CLI argument).
func Default() Config {
	return Config{
		ThreadPoolSize:   defaultThreadPool,
		CacheExpiryMs:    defaultCacheExpiryMs,
		LogLevel:         defaultLogLevel,
		CacheCapacity:    defaultCacheCapacity,
		CacheBucketCount: defaultCacheBuckets,
		QueueCapacity:    defaultQueueCapacity,
		ListenBacklog:    defaultListenBacklog,
		AcceptTimeoutMs:  defaultAcceptTimeoutMs,
		IOTimeoutMs:      defaultIOTimeoutMs,
		BufferSize:       defaultBufferSize,
	}
}

// Load parses the port from args (expected to be os.Args[1:]) and
// overlays the recognized environment variables (thread-pool size,
// cache expiry, log level) onto the default
// configuration. Invalid environment values are logged as warnings and
// the default is kept, matching the external interface's documented
// fallback behavior; a missing or unparsable port is a fatal
// ConfigError since the proxy cannot start without one.
func Load(args []string, logger log.Logger) (Config, error) {
	cfg := Default()

	if len(args) < 1 {
		return cfg, errors.Wrap(ErrConfig, "usage: cache-proxy <port> [admin-addr]")
	}
	port, err := strconv.Atoi(args[0])
	if err != nil || port <= 0 || port > 65535 {
		return cfg, errors.Wrapf(ErrConfig, "invalid port %q", args[0])
	}
	cfg.Port = port
	if len(args) >= 2 {
		cfg.AdminAddr = args[1]
	}

	if v, ok := os.LookupEnv(envThreadPoolSize); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			level.Warn(logger).Log("msg", "invalid "+envThreadPoolSize+", using default", "value", v, "default", defaultThreadPool)
		} else {
			cfg.ThreadPoolSize = n
		}
	}

	if v, ok := os.LookupEnv(envCacheExpiredMs); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			level.Warn(logger).Log("msg", "invalid "+envCacheExpiredMs+", using default", "value", v, "default", defaultCacheExpiryMs)
		} else {
			cfg.CacheExpiryMs = n
		}
	}

	if v, ok := os.LookupEnv(envLogLevel); ok {
		switch v {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = v
		default:
			level.Warn(logger).Log("msg", "invalid "+envLogLevel+", using default", "value", v, "default", defaultLogLevel)
		}
	}

	return cfg, nil
}

// Level converts LogLevel into a go-kit/log/level option.
func (c Config) Level() level.Option {
	switch c.LogLevel {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}
