package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// envSettings captures every environment variable the external interface
// contract reads at startup.
type envSettings struct {
	appName    string
	devMode    bool
	profiling  bool
	logLevel   string
	pubTopic   string
	clients    []string
	topicCfg   string
	configRoot string
	logDir     string
}

// readEnv parses the process environment per the external interface
// contract. A missing AppName or more than one PubTopics entry is a
// ConfigError-class startup failure.
func readEnv() (envSettings, error) {
	appName := os.Getenv("AppName")
	if appName == "" {
		return envSettings{}, fmt.Errorf("AppName is required")
	}

	topics := splitNonEmpty(os.Getenv("PubTopics"))
	if len(topics) != 1 {
		return envSettings{}, fmt.Errorf("PubTopics must name exactly one topic, got %d", len(topics))
	}

	settings := envSettings{
		appName:    appName,
		devMode:    parseBool(os.Getenv("DEV_MODE")),
		profiling:  parseBool(os.Getenv("PROFILING_MODE")),
		logLevel:   os.Getenv("PY_LOG_LEVEL"),
		pubTopic:   topics[0],
		clients:    splitNonEmpty(os.Getenv("Clients")),
		configRoot: envOr("CONFIG_ROOT", "./config"),
		logDir:     envOr("LOG_DIR", ""),
	}
	settings.topicCfg = os.Getenv(settings.pubTopic + "_cfg")
	return settings, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(s)
	return err == nil && v
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
