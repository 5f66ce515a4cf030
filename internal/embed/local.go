package embed

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

// localMaxTokens bounds the token sequence fed to the model; statute
// fragments are short, so truncation at 256 loses nothing in practice.
const localMaxTokens = 256

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// LocalEmbedder runs a sentence-transformer ONNX model (MiniLM-class)
// in-process: tokenize, run the session, mean-pool the last hidden state
// over the attention mask. No network access is needed, which makes it the
// default backend when embedding dedup is enabled without an endpoint.
type LocalEmbedder struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizer.Tokenizer
	dims      int

	mu sync.Mutex // the ONNX session is not safe for concurrent Run calls
}

// NewLocalEmbedder loads the tokenizer and ONNX model from disk. The
// shared onnxruntime library path may be overridden with
// STATLINE_ONNXRUNTIME_LIB.
func NewLocalEmbedder(modelPath, tokenizerPath string) (*LocalEmbedder, error) {
	if modelPath == "" || tokenizerPath == "" {
		return nil, fmt.Errorf("model and tokenizer paths are required")
	}

	ortInitOnce.Do(func() {
		if lib := os.Getenv("STATLINE_ONNXRUNTIME_LIB"); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("initializing onnxruntime: %w", ortInitErr)
	}

	tk, err := pretrained.FromFile(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer %s: %w", tokenizerPath, err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil)
	if err != nil {
		return nil, fmt.Errorf("loading model %s: %w", modelPath, err)
	}

	return &LocalEmbedder{session: session, tokenizer: tk}, nil
}

// Embed generates an embedding vector for a single text.
func (l *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encoding, err := l.tokenizer.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenizing: %w", err)
	}

	ids := encoding.Ids
	mask := encoding.AttentionMask
	types := encoding.TypeIds
	if len(ids) > localMaxTokens {
		ids = ids[:localMaxTokens]
		mask = mask[:localMaxTokens]
		types = types[:localMaxTokens]
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("tokenizer produced no tokens")
	}

	seqLen := int64(len(ids))
	shape := ort.NewShape(1, seqLen)

	idsTensor, err := ort.NewTensor(shape, toInt64(ids))
	if err != nil {
		return nil, fmt.Errorf("creating input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, toInt64(mask))
	if err != nil {
		return nil, fmt.Errorf("creating attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	typesTensor, err := ort.NewTensor(shape, toInt64(types))
	if err != nil {
		return nil, fmt.Errorf("creating token_type_ids tensor: %w", err)
	}
	defer typesTensor.Destroy()

	outputs := []ort.Value{nil}

	l.mu.Lock()
	err = l.session.Run([]ort.Value{idsTensor, maskTensor, typesTensor}, outputs)
	l.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("running model: %w", err)
	}

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}
	defer hidden.Destroy()

	outShape := hidden.GetShape()
	if len(outShape) != 3 {
		return nil, fmt.Errorf("unexpected output shape: %v", outShape)
	}
	dims := int(outShape[2])
	vector := meanPool(hidden.GetData(), mask, int(outShape[1]), dims)
	l.dims = dims

	return vector, nil
}

// EmbedBatch embeds each text sequentially; the local model has no batch
// advantage worth the padding bookkeeping at fragment scale.
func (l *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		if text == "" {
			continue
		}
		vec, err := l.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		result[i] = vec
	}
	return result, nil
}

// Dimensions returns the model's hidden size, or 0 before the first call.
func (l *LocalEmbedder) Dimensions() int {
	return l.dims
}

// Close releases the ONNX session.
func (l *LocalEmbedder) Close() error {
	if l.session != nil {
		return l.session.Destroy()
	}
	return nil
}

// meanPool averages token vectors weighted by the attention mask.
func meanPool(data []float32, mask []int, seqLen, dims int) []float32 {
	out := make([]float32, dims)
	var count float32
	for t := 0; t < seqLen && t < len(mask); t++ {
		if mask[t] == 0 {
			continue
		}
		count++
		base := t * dims
		for d := 0; d < dims; d++ {
			out[d] += data[base+d]
		}
	}
	if count > 0 {
		for d := range out {
			out[d] /= count
		}
	}
	return out
}

func toInt64(ints []int) []int64 {
	out := make([]int64, len(ints))
	for i, v := range ints {
		out[i] = int64(v)
	}
	return out
}
