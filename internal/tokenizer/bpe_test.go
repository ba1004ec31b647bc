package tokenizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/qwen3-asr-go/internal/testutil"
)

func writeVocab(t *testing.T, spec testutil.VocabSpec) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.json")

	if err := os.WriteFile(path, testutil.BuildVocabJSON(spec), 0o644); err != nil {
		t.Fatalf("write vocab: %v", err)
	}

	return path
}

func smallVocabSpec() testutil.VocabSpec {
	return testutil.VocabSpec{
		Vocab: map[string]int64{
			"h": 0, "e": 1, "l": 2, "o": 3,
			"he": 4, "ll": 5, "hell": 6, "hello": 7,
			"<|bos|>": 8, "<|eos|>": 9, "<|lang_en|>": 10, "<|lang_de|>": 11,
		},
		Merges: []string{"h e", "l l", "hell o", "he ll"},
		SpecialTokens: map[string]int64{
			"<|bos|>":     8,
			"<|eos|>":     9,
			"<|lang_en|>": 10,
			"<|lang_de|>": 11,
		},
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err == nil {
		t.Fatal("expected error for missing vocab file")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	path := writeVocab(t, smallVocabSpec())

	tok, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ids, err := tok.Encode("hello")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	text, err := tok.Decode(ids)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if text != "hello" {
		t.Fatalf("round trip mismatch: got %q want %q", text, "hello")
	}
}

func TestSupportedLanguagesDiscoveredFromSpecialTokens(t *testing.T) {
	path := writeVocab(t, smallVocabSpec())

	tok, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	langs := tok.SupportedLanguages()
	if len(langs) != 2 {
		t.Fatalf("expected 2 supported languages, got %d: %v", len(langs), langs)
	}

	found := map[string]bool{}
	for _, l := range langs {
		found[l] = true
	}

	if !found["en"] || !found["de"] {
		t.Fatalf("expected en and de in %v", langs)
	}
}

func TestTokenIDAndIsSpecial(t *testing.T) {
	path := writeVocab(t, smallVocabSpec())

	tok, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	id, ok := tok.TokenID("<|bos|>")
	if !ok || id != 8 {
		t.Fatalf("expected bos id 8, got id=%d ok=%v", id, ok)
	}

	if !tok.IsSpecial(8) {
		t.Fatal("expected id 8 to be special")
	}

	if tok.IsSpecial(0) {
		t.Fatal("did not expect id 0 to be special")
	}
}

func TestEncodeUnknownSymbolErrors(t *testing.T) {
	// A vocab with entries only for "h" and "e" cannot encode the space or
	// the "z" in "he z".
	spec := testutil.VocabSpec{
		Vocab:         map[string]int64{"h": 0, "e": 1},
		Merges:        nil,
		SpecialTokens: map[string]int64{},
	}

	path := writeVocab(t, spec)

	tok, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, err := tok.Encode("he z"); err == nil {
		t.Fatal("expected error encoding a byte missing from the vocabulary")
	}
}
