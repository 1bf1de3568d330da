// Package inference runs BERT-style transformer models in-process with ONNX
// Runtime: sequence classification, zero-shot classification by sentence
// embedding, and token classification for named entities.
package inference

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// InitRuntime loads the ONNX Runtime shared library. Only the first call has
// any effect; later calls return the first result.
func InitRuntime(libPath string) error {
	ortEnv.once.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// session wraps a DynamicAdvancedSession for a BERT-style encoder with a
// single output tensor.
type session struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	// outDims is the declared output shape; dynamic axes are negative.
	outDims []int64
}

func newSession(modelPath string) (*session, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}

	inputNames, err := validateInputs(inputs)
	if err != nil {
		return nil, err
	}

	if len(outputs) == 0 {
		return nil, errors.New("onnx: model has no outputs")
	}
	dims := []int64(outputs[0].Dimensions)
	if len(dims) != 2 && len(dims) != 3 {
		return nil, fmt.Errorf("onnx: expected 2D or 3D output tensor, got %v", dims)
	}
	if dims[len(dims)-1] <= 0 {
		return nil, fmt.Errorf("onnx: output feature axis must be static, got %v", dims)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(4)
	opts.SetInterOpNumThreads(1)

	s, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &session{
		session:    s,
		inputNames: inputNames,
		outputName: outputs[0].Name,
		outDims:    dims,
	}, nil
}

// validateInputs requires input_ids and attention_mask. token_type_ids is
// passed only when the model declares it (DistilBERT-style models do not).
func validateInputs(inputs []ort.InputOutputInfo) ([]string, error) {
	nameSet := make(map[string]bool, len(inputs))
	for _, inp := range inputs {
		nameSet[inp.Name] = true
	}
	names := []string{"input_ids", "attention_mask"}
	for _, name := range names {
		if !nameSet[name] {
			return nil, fmt.Errorf("onnx: model missing required input %q", name)
		}
	}
	if nameSet["token_type_ids"] {
		names = append(names, "token_type_ids")
	}
	return names, nil
}

// features is the size of the last output axis (labels or hidden size).
func (s *session) features() int64 {
	return s.outDims[len(s.outDims)-1]
}

// perToken reports whether the output carries one row per input token.
func (s *session) perToken() bool {
	return len(s.outDims) == 3
}

// infer runs one sequence through the model and returns the flat output:
// [features] for pooled heads, [seqLen * features] for per-token heads.
func (s *session) infer(enc encoding) ([]float32, error) {
	seqLen := int64(len(enc.ids))
	shape := ort.NewShape(1, seqLen)

	inputs := make([]ort.Value, 0, len(s.inputNames))
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()

	for _, name := range s.inputNames {
		var data []int64
		switch name {
		case "input_ids":
			data = enc.ids
		case "attention_mask":
			data = enc.mask
		default:
			data = enc.typeIDs
		}
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("onnx: failed to create %s tensor: %w", name, err)
		}
		inputs = append(inputs, t)
	}

	outShape := ort.NewShape(1, s.features())
	if s.perToken() {
		outShape = ort.NewShape(1, seqLen, s.features())
	}
	out, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := s.session.Run(inputs, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}

	// Copy data out before the tensor is destroyed.
	src := out.GetData()
	result := make([]float32, len(src))
	copy(result, src)
	return result, nil
}

func (s *session) close() error {
	return s.session.Destroy()
}
