package daemon

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"beacon/internal/config"
	"beacon/internal/supervisor"
)

// engineReadyTimeout bounds how long startup waits for a redis-server child
// to accept connections.
const engineReadyTimeout = 10 * time.Second

// BuildServiceSpecs translates the configuration into the ordered child
// service list. The settings engine and the data engine come first and are
// required; everything after them is optional.
func BuildServiceSpecs(cfg *config.Config) []supervisor.Spec {
	specs := []supervisor.Spec{
		redisSpec("redis", cfg.Redis, true),
		redisSpec("redis-data", cfg.RedisData, false),
	}

	if cfg.TangoPort > 0 {
		specs = append(specs, supervisor.Spec{
			Name:    "tango-db",
			Command: "databaseds",
			Args:    []string{"--port", strconv.Itoa(cfg.TangoPort)},
			Ports:   []int{cfg.TangoPort},
		})
	}
	if cfg.WebAppPort > 0 {
		specs = append(specs, supervisor.Spec{
			Name:    "webapp",
			Command: "beacon-web",
			Args:    []string{"--port", strconv.Itoa(cfg.WebAppPort)},
			Ports:   []int{cfg.WebAppPort},
		})
	}
	if cfg.LogServer.ViewerPort > 0 {
		specs = append(specs, supervisor.Spec{
			Name:    "log-viewer",
			Command: "tailon",
			Args: []string{
				"-b", fmt.Sprintf(":%d", cfg.LogServer.ViewerPort),
				filepath.Join(cfg.LogServer.OutputFolder, "*.log"),
			},
			Ports: []int{cfg.LogServer.ViewerPort},
		})
	}
	return specs
}

func redisSpec(name string, rc config.Redis, withSocket bool) supervisor.Spec {
	var args []string
	if rc.ConfPath != "" {
		args = append(args, rc.ConfPath)
	}
	args = append(args, "--port", strconv.Itoa(rc.Port))
	if withSocket && rc.Socket != "" {
		args = append(args, "--unixsocket", rc.Socket)
	}
	return supervisor.Spec{
		Name:         name,
		Command:      "redis-server",
		Args:         args,
		Ports:        []int{rc.Port},
		Required:     true,
		ReadyTimeout: engineReadyTimeout,
	}
}
