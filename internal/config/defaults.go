package config

const (
	// DefaultDiscoveryPort is the fixed UDP port discovery requests target.
	DefaultDiscoveryPort = 8021

	defaultRedisPort     = 6379
	defaultRedisDataPort = 6380
	defaultRedisSocket   = "/tmp/redis.sock"
	defaultLogLevel      = "info"
	defaultLogFormat     = "console"
	defaultLogRotateMiB  = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		DiscoveryPort: DefaultDiscoveryPort,
		Redis: Redis{
			Port:   defaultRedisPort,
			Socket: defaultRedisSocket,
		},
		RedisData: Redis{
			Port: defaultRedisDataPort,
		},
		LogServer: LogServer{
			RotateMiB: defaultLogRotateMiB,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
