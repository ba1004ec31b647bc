package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/example/qwen3-asr-go/internal/asrerr"
)

type vocabFile struct {
	Vocab         map[string]int64 `json:"vocab"`
	Merges        []string         `json:"merges"`
	SpecialTokens map[string]int64 `json:"special_tokens"`
}

type mergePair struct {
	a, b string
}

// BPE implements byte-level BPE tokenization as described by the spec:
// bytes are mapped through a fixed byte→printable-unicode alphabet, the
// highest-priority adjacent-symbol merge (lowest merge-list index) is
// applied repeatedly until none apply, and the resulting symbols are
// looked up in the vocabulary.
type BPE struct {
	vocab         map[string]int64
	idToToken     []string
	mergeRank     map[mergePair]int
	specialTokens map[string]int64
	idToSpecial   map[int64]string
	byteEncoder   map[byte]rune
	byteDecoder   map[rune]byte
	languages     []string
}

// Load reads vocab.json from the model directory and builds a BPE
// tokenizer. Missing file is a FileNotFoundError load failure, per the
// spec's external-interfaces contract for the vocabulary file.
func Load(path string) (*BPE, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &asrerr.FileNotFoundError{Path: path}
		}

		return nil, fmt.Errorf("tokenizer: read %s: %w", path, err)
	}

	var vf vocabFile
	if err := json.Unmarshal(data, &vf); err != nil {
		return nil, fmt.Errorf("tokenizer: parse %s: %w", path, err)
	}

	return newFromVocabFile(vf)
}

func newFromVocabFile(vf vocabFile) (*BPE, error) {
	if len(vf.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer: vocab.json has an empty vocab mapping")
	}

	maxID := int64(0)

	for _, id := range vf.Vocab {
		if id > maxID {
			maxID = id
		}
	}

	for _, id := range vf.SpecialTokens {
		if id > maxID {
			maxID = id
		}
	}

	idToToken := make([]string, maxID+1)
	for tok, id := range vf.Vocab {
		idToToken[id] = tok
	}

	mergeRank := make(map[mergePair]int, len(vf.Merges))

	for i, m := range vf.Merges {
		parts := strings.SplitN(m, " ", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("tokenizer: malformed merge entry %q", m)
		}

		mergeRank[mergePair{parts[0], parts[1]}] = i
	}

	idToSpecial := make(map[int64]string, len(vf.SpecialTokens))
	for name, id := range vf.SpecialTokens {
		idToSpecial[id] = name
	}

	benc, bdec := byteAlphabet()

	languages := make([]string, 0)

	for name := range vf.SpecialTokens {
		if lang, ok := strings.CutPrefix(name, "<|lang_"); ok {
			lang, ok = strings.CutSuffix(lang, "|>")
			if ok {
				languages = append(languages, lang)
			}
		}
	}

	return &BPE{
		vocab:         vf.Vocab,
		idToToken:     idToToken,
		mergeRank:     mergeRank,
		specialTokens: vf.SpecialTokens,
		idToSpecial:   idToSpecial,
		byteEncoder:   benc,
		byteDecoder:   bdec,
		languages:     languages,
	}, nil
}

// byteAlphabet builds the classic byte-level BPE mapping from every byte
// value to a distinct printable (non-whitespace, non-control) rune, so any
// byte sequence can be represented as a string of "safe" unicode symbols
// before merges are applied.
func byteAlphabet() (map[byte]rune, map[rune]byte) {
	enc := make(map[byte]rune, 256)
	dec := make(map[rune]byte, 256)

	var printable []int
	for _, r := range []struct{ lo, hi int }{
		{'!', '~'}, {0xA1, 0xAC}, {0xAE, 0xFF},
	} {
		for b := r.lo; b <= r.hi; b++ {
			printable = append(printable, b)
		}
	}

	assigned := make(map[int]bool, len(printable))
	for _, b := range printable {
		assigned[b] = true
	}

	n := 0

	for b := 0; b < 256; b++ {
		if assigned[b] {
			enc[byte(b)] = rune(b)
			dec[rune(b)] = byte(b)

			continue
		}

		r := rune(256 + n)
		enc[byte(b)] = r
		dec[r] = byte(b)
		n++
	}

	return enc, dec
}

// Encode maps text to UTF-8 bytes, then each byte through the byte
// alphabet, then greedily merges adjacent symbol pairs by lowest merge
// rank until none apply, then looks each resulting symbol up in the
// vocabulary.
func (t *BPE) Encode(text string) ([]int64, error) {
	if text == "" {
		return []int64{}, nil
	}

	raw := []byte(text)
	symbols := make([]string, len(raw))

	for i, b := range raw {
		symbols[i] = string(t.byteEncoder[b])
	}

	symbols = t.applyMerges(symbols)

	ids := make([]int64, 0, len(symbols))

	for _, sym := range symbols {
		id, ok := t.vocab[sym]
		if !ok {
			return nil, fmt.Errorf("tokenizer: symbol %q not found in vocabulary", sym)
		}

		ids = append(ids, id)
	}

	return ids, nil
}

func (t *BPE) applyMerges(symbols []string) []string {
	for {
		bestRank := -1
		bestIdx := -1

		for i := 0; i+1 < len(symbols); i++ {
			rank, ok := t.mergeRank[mergePair{symbols[i], symbols[i+1]}]
			if !ok {
				continue
			}

			if bestIdx == -1 || rank < bestRank {
				bestRank = rank
				bestIdx = i
			}
		}

		if bestIdx == -1 {
			return symbols
		}

		merged := symbols[bestIdx] + symbols[bestIdx+1]
		next := make([]string, 0, len(symbols)-1)
		next = append(next, symbols[:bestIdx]...)
		next = append(next, merged)
		next = append(next, symbols[bestIdx+2:]...)
		symbols = next
	}
}

// Decode concatenates the token strings for ids, reverse-maps through the
// byte alphabet, and returns the resulting bytes as a string. Bytes that do
// not form valid UTF-8 are passed through unchanged (Go strings are byte
// sequences, so this happens without extra handling), which allows callers
// to stream mid-token output.
func (t *BPE) Decode(ids []int64) (string, error) {
	var out strings.Builder

	for _, id := range ids {
		if id < 0 || int(id) >= len(t.idToToken) || t.idToToken[id] == "" {
			if _, ok := t.idToSpecial[id]; ok {
				continue
			}

			return "", fmt.Errorf("tokenizer: id %d not found in vocabulary", id)
		}

		for _, r := range t.idToToken[id] {
			b, ok := t.byteDecoder[r]
			if !ok {
				return "", fmt.Errorf("tokenizer: rune %q not in byte alphabet", r)
			}

			out.WriteByte(b)
		}
	}

	return out.String(), nil
}

// TokenID resolves a special token by symbolic name, e.g. "<|bos|>".
func (t *BPE) TokenID(special string) (int64, bool) {
	id, ok := t.specialTokens[special]
	return id, ok
}

// IsSpecial reports whether id names a special token.
func (t *BPE) IsSpecial(id int64) bool {
	_, ok := t.idToSpecial[id]
	return ok
}

// SupportedLanguages returns the language tags discovered in the
// special-tokens section (from "<|lang_XX|>" entries), the source the spec
// requires supported_languages_csv to read from rather than a hardcoded
// list.
func (t *BPE) SupportedLanguages() []string {
	return append([]string(nil), t.languages...)
}
