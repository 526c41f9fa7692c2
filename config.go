package dashserve

import (
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// DefaultPort is used when PORT is unset.
const DefaultPort = 8085

// EnvConfig is the server configuration, read from environment variables.
type EnvConfig struct {
	Port        int    `env:"PORT" envDefault:"8085"`
	AssetRoot   string `env:"ASSET_ROOT" envDefault:"dist"`
	Entry       string `env:"ENTRY_DOCUMENT" envDefault:"index.html"`
	KillSwitch  bool   `env:"KILL_SWITCH" envDefault:"true"`
	WorkerPath  string `env:"WORKER_PATH" envDefault:"/sw.js"`
	HeaderRules string `env:"HEADER_RULES"`
	MetricsAddr string `env:"METRICS_ADDR"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"debug"`
	LogFile     string `env:"LOG_FILE"`
}

// ParseEnv loads configuration from the process environment.
func ParseEnv() (EnvConfig, error) {
	return parse(env.Options{})
}

// ParseEnvFrom loads configuration from the given variables only.
func ParseEnvFrom(environ map[string]string) (EnvConfig, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (EnvConfig, error) {
	var config EnvConfig
	if err := env.ParseWithOptions(&config, opts); err != nil {
		return config, fmt.Errorf("parse env: %w", err)
	}
	if config.Port < 0 || config.Port > 65535 {
		return config, fmt.Errorf("parse env: PORT %d out of range", config.Port)
	}
	config.Entry = entryName(config.Entry)
	if !fs.ValidPath(config.Entry) || config.Entry == "." {
		return config, fmt.Errorf("parse env: ENTRY_DOCUMENT %q is not a file path under the asset root", config.Entry)
	}
	config.WorkerPath = routePath(config.WorkerPath)
	return config, nil
}

// Addr is the listen address, on all interfaces.
func (c EnvConfig) Addr() string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(c.Port))
}

// entryName turns an entry document given as a URL path into an fs name.
func entryName(entry string) string {
	return strings.TrimPrefix(entry, "/")
}

// routePath makes p usable as a chi route pattern.
func routePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}
