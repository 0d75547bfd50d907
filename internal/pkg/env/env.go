package env

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var Env map[string]string

var envFiles = []string{
	".env",          // Current directory
	"../../.env",    // From cmd/gate to project root
	"../../../.env", // Fallback for deeper nesting
}

func GetEnv(key, def string) string {
	// First check our loaded Env map
	if val, ok := Env[key]; ok {
		return val
	}
	// Fallback to OS environment variables (for Docker/tests)
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvInt returns the integer value of key, or def when unset or malformed.
func GetEnvInt(key string, def int) int {
	raw := strings.TrimSpace(GetEnv(key, ""))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// GetEnvBool accepts 1/true/yes/on (case-insensitive) as true.
func GetEnvBool(key string, def bool) bool {
	raw := strings.ToLower(strings.TrimSpace(GetEnv(key, "")))
	switch raw {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// GetEnvList splits a comma separated value, dropping empty entries.
func GetEnvList(key string, def []string) []string {
	raw := GetEnv(key, "")
	if strings.TrimSpace(raw) == "" {
		return def
	}
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SetupEnvFile loads the first .env file found and panics when there is none.
func SetupEnvFile() {
	if !LoadEnvFile() {
		panic("No .env file found in any of the expected locations")
	}
}

// LoadEnvFile is the lenient variant used by the CLI, where plain process
// environment is enough.
func LoadEnvFile() bool {
	var err error
	for _, envFile := range envFiles {
		Env, err = godotenv.Read(envFile)
		if err == nil {
			return true
		}
	}
	Env = map[string]string{}
	return false
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
