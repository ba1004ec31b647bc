package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteTranscribeOutput_Stdout(t *testing.T) {
	var buf bytes.Buffer

	if err := writeTranscribeOutput("-", "hello", &buf); err != nil {
		t.Fatalf("writeTranscribeOutput: %v", err)
	}

	if buf.String() != "hello\n" {
		t.Fatalf("stdout output = %q; want %q", buf.String(), "hello\n")
	}
}

func TestWriteTranscribeOutput_EmptyPathDefaultsToStdout(t *testing.T) {
	var buf bytes.Buffer

	if err := writeTranscribeOutput("", "hi", &buf); err != nil {
		t.Fatalf("writeTranscribeOutput: %v", err)
	}

	if buf.String() != "hi\n" {
		t.Fatalf("stdout output = %q; want %q", buf.String(), "hi\n")
	}
}

func TestWriteTranscribeOutput_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	if err := writeTranscribeOutput(path, "transcribed text", nil); err != nil {
		t.Fatalf("writeTranscribeOutput: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != "transcribed text\n" {
		t.Fatalf("file contents = %q; want %q", string(got), "transcribed text\n")
	}
}
