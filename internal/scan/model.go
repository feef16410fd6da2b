package scan

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/sync/singleflight"
)

// featureDim is the size of the hashed bag-of-words vector the sector model
// consumes. Must match the exported model's input shape.
const featureDim = 512

// minHintConfidence is the probability below which a model prediction is
// ignored and the document stays "General".
const minHintConfidence = 0.6

var errNoBundle = errors.New("sector model bundle not configured")

// SectorModel wraps an ONNX classification session over hashed token counts.
// Run is serialized with a mutex because the session reuses its input and
// output tensors between calls.
type SectorModel struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	labels  []string
	mu      sync.Mutex
}

// SectorModelProvider lazily loads a SectorModel at most once per process.
// Concurrent first uses are deduplicated through singleflight so the expensive
// load runs exactly once; later callers share the cached instance. A load
// failure is cached too: the provider degrades permanently to "no hint" rather
// than retrying the load on every scan.
type SectorModelProvider struct {
	bundleDir string

	group singleflight.Group
	mu    sync.RWMutex
	model *SectorModel
	err   error
	done  bool
}

// NewSectorModelProvider returns a provider reading the model bundle from
// bundleDir. An empty bundleDir yields a provider that never hints.
func NewSectorModelProvider(bundleDir string) *SectorModelProvider {
	return &SectorModelProvider{bundleDir: bundleDir}
}

// Hint classifies text with the lazily-loaded model. The boolean is false when
// the model is unavailable or not confident enough.
func (p *SectorModelProvider) Hint(text string) (string, bool) {
	model, err := p.get()
	if err != nil {
		return "", false
	}
	sector, score, err := model.Classify(text)
	if err != nil || score < minHintConfidence {
		return "", false
	}
	return sector, true
}

// get returns the cached model, loading it on first use.
func (p *SectorModelProvider) get() (*SectorModel, error) {
	p.mu.RLock()
	if p.done {
		model, err := p.model, p.err
		p.mu.RUnlock()
		return model, err
	}
	p.mu.RUnlock()

	v, err, _ := p.group.Do("load", func() (any, error) {
		model, loadErr := loadSectorModel(p.bundleDir)
		p.mu.Lock()
		p.model, p.err, p.done = model, loadErr, true
		p.mu.Unlock()
		return model, loadErr
	})
	if err != nil {
		return nil, err
	}
	return v.(*SectorModel), nil
}

// loadSectorModel initializes the ONNX runtime and builds a session from the
// bundle directory. Expected layout: sector_hint.onnx plus label_map.json
// mapping output indices to sector labels.
func loadSectorModel(bundleDir string) (*SectorModel, error) {
	if bundleDir == "" {
		return nil, errNoBundle
	}

	modelPath := filepath.Join(bundleDir, "sector_hint.onnx")
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("sector model missing at %s: %w", modelPath, err)
	}

	labels, err := loadLabelMap(filepath.Join(bundleDir, "label_map.json"))
	if err != nil {
		return nil, fmt.Errorf("load label map: %w", err)
	}

	if libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, featureDim))
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(labels))))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"features"},
		[]string{"probabilities"},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &SectorModel{
		session: session,
		input:   input,
		output:  output,
		labels:  labels,
	}, nil
}

func loadLabelMap(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var labels []string
	if err := json.Unmarshal(raw, &labels); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, errors.New("label map is empty")
	}
	return labels, nil
}

// Classify runs one inference and returns the best label with its probability.
func (m *SectorModel) Classify(text string) (string, float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	featurize(text, m.input.GetData())
	if err := m.session.Run(); err != nil {
		return "", 0, fmt.Errorf("sector model inference: %w", err)
	}

	probs := m.output.GetData()
	best := 0
	for i := 1; i < len(probs) && i < len(m.labels); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return m.labels[best], probs[best], nil
}

// Close releases the session and its tensors.
func (m *SectorModel) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
	if m.input != nil {
		m.input.Destroy()
		m.input = nil
	}
	if m.output != nil {
		m.output.Destroy()
		m.output = nil
	}
}

// featurize fills dst with hashed token counts (the hashing trick): each
// lowercased whitespace-delimited token increments one of featureDim buckets.
func featurize(text string, dst []float32) {
	for i := range dst {
		dst[i] = 0
	}
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		dst[h.Sum32()%featureDim]++
	}
}
