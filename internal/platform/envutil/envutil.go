package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openjordi/openjordi-backend/internal/platform/logger"
)

// Get returns the named environment variable, logging when the default kicks in.
func Get(name, def string, log *logger.Logger) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		if log != nil {
			log.Debug("env var unset, using default", "name", name, "default", def)
		}
		return def
	}
	return v
}

func GetInt(name string, def int, log *logger.Logger) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		if log != nil {
			log.Warn("env var not an int, using default", "name", name, "value", v, "default", def)
		}
		return def
	}
	return i
}

func GetBool(name string, def bool, log *logger.Logger) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		if log != nil {
			log.Warn("env var not a bool, using default", "name", name, "value", v, "default", def)
		}
		return def
	}
}

func GetDuration(name string, def time.Duration, log *logger.Logger) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		if log != nil {
			log.Warn("env var not a duration, using default", "name", name, "value", v, "default", def)
		}
		return def
	}
	return d
}
