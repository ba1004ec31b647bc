// Package asrerr defines the typed error kinds surfaced across the engine's
// load and transcribe paths, keyed by name rather than by message text so
// callers can match them with errors.As.
package asrerr

import "fmt"

// FileNotFoundError is returned when a required model or vocabulary file is
// missing from the model directory.
type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("asr: file not found: %s", e.Path)
}

// HeaderParseError is returned when a safetensors header cannot be decoded.
type HeaderParseError struct {
	Path   string
	Reason string
}

func (e *HeaderParseError) Error() string {
	return fmt.Sprintf("asr: safetensors header parse error in %s: %s", e.Path, e.Reason)
}

// UnsupportedDtypeError is returned when a tensor declares a dtype the
// loader does not know how to materialize.
type UnsupportedDtypeError struct {
	Name  string
	Dtype string
}

func (e *UnsupportedDtypeError) Error() string {
	return fmt.Sprintf("asr: tensor %q has unsupported dtype %q", e.Name, e.Dtype)
}

// ShapeMismatchError is returned when a tensor's declared shape does not
// match what the model configuration expects.
type ShapeMismatchError struct {
	Name     string
	Expected []int64
	Actual   []int64
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("asr: tensor %q shape mismatch: expected %v, got %v", e.Name, e.Expected, e.Actual)
}

// MissingTensorError is returned when a required tensor name is absent from
// the safetensors store.
type MissingTensorError struct {
	Name string
}

func (e *MissingTensorError) Error() string {
	return fmt.Sprintf("asr: missing required tensor %q", e.Name)
}

// UnsupportedLanguageError is returned by SetForceLanguage when the
// requested language tag has no corresponding special token.
type UnsupportedLanguageError struct {
	Language string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("asr: unsupported language %q", e.Language)
}

// OutOfMemoryError is returned when an allocation needed to service a call
// cannot be satisfied.
type OutOfMemoryError struct {
	Reason string
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("asr: out of memory: %s", e.Reason)
}

// AudioTooLongError is returned when the input waveform would produce more
// encoder frames than the context's configured maximum.
type AudioTooLongError struct {
	Frames int
	Max    int
}

func (e *AudioTooLongError) Error() string {
	return fmt.Sprintf("asr: audio too long: %d frames exceeds max %d", e.Frames, e.Max)
}

// InvalidArgumentError is returned for caller contract violations that are
// not covered by a more specific kind.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("asr: invalid argument: %s", e.Reason)
}
