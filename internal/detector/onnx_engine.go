package detector

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/anime-shed/defect-inspector-go/internal/logger"
)

var ortInit sync.Once

// onnxEngine runs a YOLO ONNX export through onnxruntime. The dynamic session
// allocates tensors per call, so Run is safe to call from several goroutines.
type onnxEngine struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	inputSize  int
	metadata   map[string]string
}

// ONNXConfig locates the model and the onnxruntime shared library.
type ONNXConfig struct {
	ModelPath    string
	SharedLib    string
	IntraThreads int
}

// NewONNXEngine loads the model at cfg.ModelPath.
func NewONNXEngine(cfg ONNXConfig) (Engine, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "model file %s", cfg.ModelPath)
	}
	if err := initEnvironment(cfg.SharedLib); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, errors.Wrap(err, "read model inputs/outputs")
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, errors.Errorf("expected 1 input and at least 1 output, model has %d and %d", len(inputs), len(outputs))
	}

	engine := &onnxEngine{
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		metadata:   map[string]string{},
	}
	if dims := inputs[0].Dimensions; len(dims) == 4 && dims[2] > 0 && dims[2] == dims[3] {
		engine.inputSize = int(dims[2])
	}

	if err := engine.loadMetadata(cfg.ModelPath); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}
	defer options.Destroy()

	if cfg.IntraThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraThreads); err != nil {
			return nil, errors.Wrap(err, "set intra-op threads")
		}
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, errors.Wrap(err, "set graph optimization level")
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{engine.inputName}, []string{engine.outputName}, options)
	if err != nil {
		return nil, errors.Wrap(err, "create onnxruntime session")
	}
	engine.session = session

	logger.Component("onnx").WithFields(logrus.Fields{
		"model":      cfg.ModelPath,
		"input":      engine.inputName,
		"output":     engine.outputName,
		"input_size": engine.inputSize,
	}).Info("Model loaded")
	return engine, nil
}

func initEnvironment(sharedLib string) error {
	var initErr error
	ortInit.Do(func() {
		if ort.IsInitialized() {
			return
		}
		if sharedLib != "" {
			ort.SetSharedLibraryPath(sharedLib)
		}
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return errors.Wrap(initErr, "initialize onnxruntime")
	}
	if !ort.IsInitialized() {
		return errors.New("onnxruntime environment is not initialized")
	}
	return nil
}

func (e *onnxEngine) loadMetadata(modelPath string) error {
	md, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		return errors.Wrap(err, "read model metadata")
	}
	defer md.Destroy()

	keys, err := md.GetCustomMetadataMapKeys()
	if err != nil {
		return errors.Wrap(err, "list model metadata")
	}
	for _, key := range keys {
		value, ok, err := md.LookupCustomMetadataMap(key)
		if err != nil {
			return errors.Wrapf(err, "read metadata %q", key)
		}
		if ok {
			e.metadata[key] = value
		}
	}
	return nil
}

func (e *onnxEngine) Run(input []float32, size int) ([]float32, []int64, error) {
	if e.inputSize > 0 && size != e.inputSize {
		return nil, nil, errors.Errorf("model expects %dx%d input, got %dx%d", e.inputSize, e.inputSize, size, size)
	}

	tensor, err := ort.NewTensor(ort.NewShape(1, 3, int64(size), int64(size)), input)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create input tensor")
	}
	defer tensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{tensor}, outputs); err != nil {
		return nil, nil, errors.Wrap(err, "run session")
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, errors.Errorf("unexpected output type %T", outputs[0])
	}
	// copy out of the tensor before it is destroyed
	data := append([]float32(nil), out.GetData()...)
	shape := append([]int64(nil), out.GetShape()...)
	return data, shape, nil
}

func (e *onnxEngine) InputSize() int {
	return e.inputSize
}

func (e *onnxEngine) Metadata() map[string]string {
	out := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		out[k] = v
	}
	return out
}

func (e *onnxEngine) Close() error {
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}
