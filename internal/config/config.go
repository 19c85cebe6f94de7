// Package config provides configuration helpers for insurly commands.
package config

import (
	"fmt"
	"os"
)

// Default service configuration.
const (
	DefaultPort           = "5050"
	DefaultTranscriptFile = "transcript.txt"
)

// OpenAIKeyRequired returns the OpenAI API key from OPENAI_API_KEY.
// Exits if not set.
func OpenAIKeyRequired() string {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		fmt.Fprintln(os.Stderr, "Error: OPENAI_API_KEY environment variable is required")
		fmt.Fprintln(os.Stderr, "Usage: OPENAI_API_KEY=sk-... go run ./cmd/insurly")
		os.Exit(1)
	}
	return key
}

// Port returns the HTTP port from PORT env var or default.
func Port() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return DefaultPort
}

// TranscriptFile returns the transcript path from TRANSCRIPT_FILE env var or default.
func TranscriptFile() string {
	if path := os.Getenv("TRANSCRIPT_FILE"); path != "" {
		return path
	}
	return DefaultTranscriptFile
}

// LogLevel returns the log level from LOG_LEVEL env var, defaulting to "info".
func LogLevel() string {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		return level
	}
	return "info"
}
