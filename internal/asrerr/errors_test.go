package asrerr

import (
	"errors"
	"testing"
)

func TestErrorKindsHaveNonEmptyMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"FileNotFound", &FileNotFoundError{Path: "model.safetensors"}},
		{"HeaderParse", &HeaderParseError{Path: "model.safetensors", Reason: "bad json"}},
		{"UnsupportedDtype", &UnsupportedDtypeError{Name: "w", Dtype: "I64"}},
		{"ShapeMismatch", &ShapeMismatchError{Name: "w", Expected: []int64{2}, Actual: []int64{3}}},
		{"MissingTensor", &MissingTensorError{Name: "w"}},
		{"UnsupportedLanguage", &UnsupportedLanguageError{Language: "xx"}},
		{"OutOfMemory", &OutOfMemoryError{Reason: "alloc failed"}},
		{"AudioTooLong", &AudioTooLongError{Frames: 10, Max: 5}},
		{"InvalidArgument", &InvalidArgumentError{Reason: "bad flag"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Error() == "" {
				t.Fatal("expected a non-empty error message")
			}
		})
	}
}

func TestFileNotFoundErrorAs(t *testing.T) {
	var err error = &FileNotFoundError{Path: "vocab.json"}

	var target *FileNotFoundError
	if !errors.As(err, &target) {
		t.Fatal("expected errors.As to match FileNotFoundError")
	}

	if target.Path != "vocab.json" {
		t.Fatalf("unexpected path: %s", target.Path)
	}
}
