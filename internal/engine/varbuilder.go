package engine

import (
	"strconv"
	"strings"

	"github.com/example/qwen3-asr-go/internal/asrerr"
	"github.com/example/qwen3-asr-go/internal/runtime/tensor"
	"github.com/example/qwen3-asr-go/internal/safetensors"
)

// VarBuilder resolves dotted weight names against a safetensors.Store,
// building up a name prefix one path segment at a time the way
// cwbudde/go-pocket-tts's VarBuilder walks a checkpoint's tensor namespace.
type VarBuilder struct {
	store  *safetensors.Store
	prefix string
}

// NewVarBuilder returns a root VarBuilder with an empty prefix.
func NewVarBuilder(store *safetensors.Store) *VarBuilder {
	return &VarBuilder{store: store}
}

// Path descends into a child namespace, joining parts with ".". Integer
// parts (layer indices) are accepted as ints or strings.
func (vb *VarBuilder) Path(parts ...any) *VarBuilder {
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			segs = append(segs, v)
		case int:
			segs = append(segs, strconv.Itoa(v))
		default:
			segs = append(segs, strconv.Itoa(0))
		}
	}

	child := strings.Join(segs, ".")
	if vb.prefix == "" {
		return &VarBuilder{store: vb.store, prefix: child}
	}

	return &VarBuilder{store: vb.store, prefix: vb.prefix + "." + child}
}

func (vb *VarBuilder) resolve(name string) string {
	if vb.prefix == "" {
		return name
	}

	return vb.prefix + "." + name
}

// Has reports whether the fully-qualified tensor name exists in the store.
func (vb *VarBuilder) Has(name string) bool {
	return vb.store.Has(vb.resolve(name))
}

// Tensor loads a tensor by relative name, dequantizing if necessary, and
// validates its shape when wantShape is non-empty.
func (vb *VarBuilder) Tensor(name string, wantShape ...int64) (*tensor.Tensor, error) {
	full := vb.resolve(name)

	var st *safetensors.Tensor
	var err error

	if len(wantShape) > 0 {
		st, err = vb.store.TensorWithShape(full, wantShape)
	} else {
		st, err = vb.store.Tensor(full)
	}

	if err != nil {
		return nil, err
	}

	return tensor.New(st.Data, st.Shape)
}

// TensorMaybe loads an optional tensor, returning (nil, false, nil) when
// absent instead of an error — used for bias terms the checkpoint may omit.
func (vb *VarBuilder) TensorMaybe(name string, wantShape ...int64) (*tensor.Tensor, bool, error) {
	full := vb.resolve(name)

	if !vb.store.Has(full) {
		return nil, false, nil
	}

	t, err := vb.Tensor(name, wantShape...)
	if err != nil {
		return nil, false, err
	}

	return t, true, nil
}

// RequireTensor is Tensor but wraps a missing name in asrerr.MissingTensorError
// with the fully-qualified path for caller-facing diagnostics.
func (vb *VarBuilder) RequireTensor(name string, wantShape ...int64) (*tensor.Tensor, error) {
	full := vb.resolve(name)

	if !vb.store.Has(full) {
		return nil, &asrerr.MissingTensorError{Name: full}
	}

	return vb.Tensor(name, wantShape...)
}
