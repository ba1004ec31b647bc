// Package safetensors reads the safetensors container format: an 8-byte
// little-endian header length, that many bytes of JSON describing each
// tensor's dtype/shape/offsets, then the raw tensor byte region.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/example/qwen3-asr-go/internal/asrerr"
)

const (
	dtypeF32            = "F32"
	dtypeF16            = "F16"
	dtypeBF16           = "BF16"
	dtypeQInt8Blockwise = "QINT8_BLOCKWISE"
)

// Tensor holds a single tensor materialized to float32.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// Store is an open safetensors file: header parsed and validated, tensor
// payloads decoded (and dequantized, where declared) on demand.
type Store struct {
	raw     []byte
	entries map[string]storeEntry
	names   []string
}

type storeEntry struct {
	DType     string
	Shape     []int64
	Start     int
	End       int
	BlockSize int
	HasZeros  bool
}

type tensorMetadata struct {
	DType     string  `json:"dtype"`
	Shape     []int64 `json:"shape"`
	Offsets   [2]int  `json:"data_offsets"`
	BlockSize int     `json:"block_size,omitempty"`
	HasZeros  bool    `json:"has_zeros,omitempty"`
}

// Open reads a safetensors file from disk and parses its header.
func Open(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &asrerr.FileNotFoundError{Path: path}
		}

		return nil, fmt.Errorf("safetensors: read %s: %w", path, err)
	}

	return OpenFromBytes(data, path)
}

// OpenFromBytes parses a safetensors payload already in memory. path is
// used only for error messages.
func OpenFromBytes(data []byte, path string) (*Store, error) {
	headerEnd, header, err := decodeHeader(data, path)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(header))
	for name := range header {
		keys = append(keys, name)
	}

	sort.Strings(keys)

	entries := make(map[string]storeEntry, len(keys))
	names := make([]string, 0, len(keys))

	for _, name := range keys {
		if name == "__metadata__" {
			continue
		}

		var meta tensorMetadata
		if err := json.Unmarshal(header[name], &meta); err != nil {
			return nil, &asrerr.HeaderParseError{Path: path, Reason: fmt.Sprintf("tensor %q: %v", name, err)}
		}

		entry, err := buildEntry(name, meta, headerEnd, len(data))
		if err != nil {
			return nil, err
		}

		entries[name] = entry
		names = append(names, name)
	}

	if err := validateOffsetLayout(entries, path); err != nil {
		return nil, err
	}

	sort.Strings(names)

	return &Store{raw: data, entries: entries, names: names}, nil
}

// validateOffsetLayout checks that tensor data regions, once sorted by start
// offset, are monotonically non-decreasing and non-overlapping.
func validateOffsetLayout(entries map[string]storeEntry, path string) error {
	type span struct {
		name       string
		start, end int
	}

	spans := make([]span, 0, len(entries))
	for name, e := range entries {
		spans = append(spans, span{name, e.Start, e.End})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return fmt.Errorf("safetensors: tensor %q data region [%d,%d) overlaps %q [%d,%d) in %s",
				spans[i].name, spans[i].start, spans[i].end, spans[i-1].name, spans[i-1].start, spans[i-1].end, path)
		}
	}

	return nil
}

func buildEntry(name string, meta tensorMetadata, headerEnd, fileLen int) (storeEntry, error) {
	dtype := strings.ToUpper(meta.DType)

	switch dtype {
	case dtypeF32, dtypeF16, dtypeBF16, dtypeQInt8Blockwise:
	default:
		return storeEntry{}, &asrerr.UnsupportedDtypeError{Name: name, Dtype: meta.DType}
	}

	for _, d := range meta.Shape {
		if d < 0 {
			return storeEntry{}, fmt.Errorf("safetensors: tensor %q has negative shape dimension in %v", name, meta.Shape)
		}
	}

	if len(meta.Shape) < 1 {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q must have rank >= 1", name)
	}

	start := headerEnd + meta.Offsets[0]
	end := headerEnd + meta.Offsets[1]

	if meta.Offsets[0] < 0 || meta.Offsets[1] < meta.Offsets[0] || start < headerEnd || end > fileLen {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q data offsets %v exceed file bounds", name, meta.Offsets)
	}

	elemCount, err := shapeElementCount(meta.Shape)
	if err != nil {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q: %w", name, err)
	}

	elemBytes := dtypeBytes(dtype)
	expectedBytes := int(elemCount) * elemBytes

	if end-start < expectedBytes {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q needs %d bytes but data region has %d", name, expectedBytes, end-start)
	}

	blockSize := meta.BlockSize
	if dtype == dtypeQInt8Blockwise && blockSize <= 0 {
		blockSize = 32
	}

	return storeEntry{
		DType:     dtype,
		Shape:     append([]int64(nil), meta.Shape...),
		Start:     start,
		End:       end,
		BlockSize: blockSize,
		HasZeros:  meta.HasZeros,
	}, nil
}

// Names returns the sorted tensor names available in the store.
func (s *Store) Names() []string {
	return append([]string(nil), s.names...)
}

// Has reports whether name exists in the store.
func (s *Store) Has(name string) bool {
	_, ok := s.entries[name]
	return ok
}

// Tensor decodes (and dequantizes, if needed) a tensor by name.
func (s *Store) Tensor(name string) (*Tensor, error) {
	entry, ok := s.entries[name]
	if !ok {
		return nil, &asrerr.MissingTensorError{Name: name}
	}

	data, err := decodeTensorData(s.raw[entry.Start:entry.End], entry)
	if err != nil {
		return nil, fmt.Errorf("safetensors: tensor %q decode: %w", name, err)
	}

	return &Tensor{Name: name, Shape: append([]int64(nil), entry.Shape...), Data: data}, nil
}

// TensorWithShape decodes a tensor and validates its shape against want.
func (s *Store) TensorWithShape(name string, want []int64) (*Tensor, error) {
	t, err := s.Tensor(name)
	if err != nil {
		return nil, err
	}

	if !equalShape(t.Shape, want) {
		return nil, &asrerr.ShapeMismatchError{Name: name, Expected: want, Actual: t.Shape}
	}

	return t, nil
}

// Close releases the store's backing memory.
func (s *Store) Close() {
	s.raw = nil
	s.entries = nil
	s.names = nil
}

func decodeHeader(data []byte, path string) (int, map[string]json.RawMessage, error) {
	if len(data) < 8 {
		return 0, nil, &asrerr.HeaderParseError{Path: path, Reason: fmt.Sprintf("file too short (%d bytes) for header length prefix", len(data))}
	}

	headerLen := binary.LittleEndian.Uint64(data[:8])
	headerEnd := 8 + int(headerLen)

	if headerLen > uint64(len(data)) || headerEnd > len(data) || headerEnd < 8 {
		return 0, nil, &asrerr.HeaderParseError{Path: path, Reason: fmt.Sprintf("header length %d exceeds file size %d", headerLen, len(data))}
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:headerEnd], &header); err != nil {
		return 0, nil, &asrerr.HeaderParseError{Path: path, Reason: err.Error()}
	}

	return headerEnd, header, nil
}

func shapeElementCount(shape []int64) (int64, error) {
	total := int64(1)

	for _, d := range shape {
		if d == 0 {
			return 0, nil
		}

		if total > math.MaxInt64/d {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}

		total *= d
	}

	return total, nil
}

func dtypeBytes(dtype string) int {
	switch dtype {
	case dtypeF32:
		return 4
	case dtypeF16, dtypeBF16:
		return 2
	case dtypeQInt8Blockwise:
		return 1
	default:
		return 0
	}
}

func decodeTensorData(raw []byte, entry storeEntry) ([]float32, error) {
	elemCount, err := shapeElementCount(entry.Shape)
	if err != nil {
		return nil, err
	}

	n := int(elemCount)
	out := make([]float32, n)

	switch entry.DType {
	case dtypeF32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}

		return out, nil
	case dtypeF16:
		for i := range out {
			out[i] = float16ToFloat32(binary.LittleEndian.Uint16(raw[i*2:]))
		}

		return out, nil
	case dtypeBF16:
		for i := range out {
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(raw[i*2:])) << 16)
		}

		return out, nil
	case dtypeQInt8Blockwise:
		return decodeQInt8Blockwise(raw, n, entry.BlockSize, entry.HasZeros)
	default:
		return nil, fmt.Errorf("unsupported dtype %q", entry.DType)
	}
}

// decodeQInt8Blockwise reads n quantized int8 values followed by one
// float32 scale per block (and, if hasZeros, one int8 zero-point per
// block), and dequantizes to float32. Layout: [q int8 * n][scale f32 *
// nBlocks][zero int8 * nBlocks]?, matching the block-wise affine scheme
// documented as the Open Question decision for this format.
func decodeQInt8Blockwise(raw []byte, n, blockSize int, hasZeros bool) ([]float32, error) {
	nBlocks := (n + blockSize - 1) / blockSize
	need := n + nBlocks*4

	if hasZeros {
		need += nBlocks
	}

	if len(raw) < need {
		return nil, fmt.Errorf("quantized tensor needs %d bytes, got %d", need, len(raw))
	}

	q := make([]int8, n)
	for i := 0; i < n; i++ {
		q[i] = int8(raw[i])
	}

	scales := make([]float32, nBlocks)
	scaleOff := n

	for b := 0; b < nBlocks; b++ {
		scales[b] = math.Float32frombits(binary.LittleEndian.Uint32(raw[scaleOff+b*4:]))
	}

	var zeros []int8

	if hasZeros {
		zeroOff := scaleOff + nBlocks*4
		zeros = make([]int8, nBlocks)

		for b := 0; b < nBlocks; b++ {
			zeros[b] = int8(raw[zeroOff+b])
		}
	}

	out := make([]float32, n)

	for i, v := range q {
		block := i / blockSize

		zp := int8(0)
		if zeros != nil {
			zp = zeros[block]
		}

		out[i] = float32(int32(v)-int32(zp)) * scales[block]
	}

	return out, nil
}

func float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h & 0x03ff)

	var bits uint32

	switch exp {
	case 0:
		if frac == 0 {
			bits = sign << 31
		} else {
			e := int32(-14)

			for (frac & 0x0400) == 0 {
				frac <<= 1
				e--
			}

			frac &= 0x03ff
			bits = (sign << 31) | (uint32(e+127) << 23) | (frac << 13)
		}
	case 0x1f:
		bits = (sign << 31) | 0x7f800000 | (frac << 13)
	default:
		bits = (sign << 31) | ((exp + 112) << 23) | (frac << 13)
	}

	return math.Float32frombits(bits)
}

func equalShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
