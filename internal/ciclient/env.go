package ciclient

import (
	"os"
	"strings"
)

const (
	EnvJobURL = "JENKINS_URL"
	EnvUser   = "JENKINS_USER"
	EnvToken  = "JENKINS_TOKEN"
)

// ApplyEnv overrides cfg with non-empty JENKINS_* variables.
func ApplyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvJobURL)); v != "" {
		cfg.JobURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvUser)); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvToken)); v != "" {
		cfg.Token = v
	}
}
