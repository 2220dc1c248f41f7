package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/himanishpuri/RhythmDNA/pkg/logger"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna"
)

var (
	port           int
	dbPath         string
	tempDir        string
	sampleRate     int
	allowedOrigins string
	logLevel       string
)

func init() {
	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("RHYTHM_DB_PATH", rhythmdna.DefaultDBFile), "Path to SQLite database")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("RHYTHM_TEMP_DIR", os.TempDir()), "Temporary directory for uploads")
	flag.IntVar(&sampleRate, "rate", 48000, "Sample rate used when converting uploads")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
	flag.StringVar(&logLevel, "log", getEnvOrDefault("LOG_LEVEL", "INFO"), "Log level (DEBUG, INFO, WARN, ERROR)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseOrigins(raw string) []string {
	if raw == "*" {
		return []string{"*"}
	}
	origins := strings.Split(raw, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return origins
}

func main() {
	flag.Parse()

	if level, ok := logger.ParseLevel(logLevel); ok {
		logger.GetLogger().SetLevel(level)
	}

	service, err := rhythmdna.NewService(
		rhythmdna.WithDBPath(dbPath),
		rhythmdna.WithTempDir(tempDir),
		rhythmdna.WithSampleRate(sampleRate),
		rhythmdna.WithLogger(logger.Named("service")),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	config := &ServerConfig{
		Port:           port,
		DBPath:         dbPath,
		TempDir:        tempDir,
		SampleRate:     sampleRate,
		AllowedOrigins: parseOrigins(allowedOrigins),
	}

	server := NewServer(service, config)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
