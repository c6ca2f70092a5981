package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries the environment-backed settings shared by the command-line
// front-ends.
type Config struct {
	// Serial
	SerialPorts    []string // candidate ports, tried in order
	BaudRate       uint
	ReadTimeout    time.Duration
	ContactTimeout time.Duration

	// Sessions
	SessionDir string

	Debug bool
}

// Load reads an optional .env file and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		SerialPorts:    getEnvList("PELAGIS_SERIAL_PORTS", defaultSerialPorts()),
		BaudRate:       getEnvUint("PELAGIS_BAUD_RATE", 4800),
		ReadTimeout:    getEnvDuration("PELAGIS_READ_TIMEOUT", 500*time.Millisecond),
		ContactTimeout: getEnvDuration("PELAGIS_CONTACT_TIMEOUT", 5*time.Second),
		SessionDir:     getEnv("PELAGIS_SESSION_DIR", "."),
		Debug:          getEnvBool("PELAGIS_DEBUG", false),
	}
	return cfg, nil
}

func defaultSerialPorts() []string {
	ports := make([]string, 0, 8)
	for i := 0; i < 4; i++ {
		ports = append(ports, "/dev/ttyUSB"+strconv.Itoa(i))
	}
	for i := 0; i < 4; i++ {
		ports = append(ports, "/dev/ttyACM"+strconv.Itoa(i))
	}
	return ports
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint) uint {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseUint(value, 10, 32); err == nil && n > 0 {
			return uint(n)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
