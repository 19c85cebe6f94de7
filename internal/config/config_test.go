package config

import "testing"

func TestPortDefault(t *testing.T) {
	t.Setenv("PORT", "")
	if got := Port(); got != DefaultPort {
		t.Errorf("Port() = %q, want %q", got, DefaultPort)
	}

	t.Setenv("PORT", "8080")
	if got := Port(); got != "8080" {
		t.Errorf("Port() = %q, want 8080", got)
	}
}

func TestTranscriptFileDefault(t *testing.T) {
	t.Setenv("TRANSCRIPT_FILE", "")
	if got := TranscriptFile(); got != DefaultTranscriptFile {
		t.Errorf("TranscriptFile() = %q, want %q", got, DefaultTranscriptFile)
	}

	t.Setenv("TRANSCRIPT_FILE", "/tmp/calls.txt")
	if got := TranscriptFile(); got != "/tmp/calls.txt" {
		t.Errorf("TranscriptFile() = %q, want /tmp/calls.txt", got)
	}
}

func TestLogLevelDefault(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	if got := LogLevel(); got != "info" {
		t.Errorf("LogLevel() = %q, want info", got)
	}
}
