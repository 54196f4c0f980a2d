// Package llm holds the dense encoder backed by the Gemini embedding API.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/markdave123-py/corpora-indexer/internal/config"
	"github.com/markdave123-py/corpora-indexer/internal/core"
	"github.com/markdave123-py/corpora-indexer/internal/core/chunker"
	"github.com/markdave123-py/corpora-indexer/internal/logger"
)

var _ core.DenseEncoder = (*GeminiEmbedder)(nil)

// batchFunc embeds one request worth of texts.
type batchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// countFunc returns the model token count of text.
type countFunc func(ctx context.Context, text string) (int, error)

// budgetSample is dense technical prose; it splits into more model tokens per
// word than ordinary course text.
const budgetSample = "Backpropagation through convolutional autoencoders (arXiv:1412.6980) " +
	"minimises L(θ) = −Σᵢ yᵢ·log(ŷᵢ) with learning-rate η=3e-4, β₁=0.9, β₂=0.999; " +
	"see Kullback–Leibler divergence, Hessian-vector products and O(n·log n) FFT-based " +
	"preconditioning in PyTorch/TensorFlow implementations. "

// GeminiEmbedder is created once at startup and shared by every worker.
// All fields are read-only after construction.
type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	dim       int
	maxTokens int
	batchSize int
	limiter   *rate.Limiter
	tokenizer core.Tokenizer
	embed     batchFunc

	inputLimit int
	count      countFunc
}

func NewGeminiEmbedder(ctx context.Context, cfg *config.Config) (*GeminiEmbedder, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(cfg.AIAPIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	em := cl.EmbeddingModel(cfg.EmbedModel)
	em.TaskType = genai.TaskTypeRetrievalDocument

	g := newEmbedder(cfg, func(ctx context.Context, texts []string) ([][]float32, error) {
		batch := em.NewBatch()
		for _, t := range texts {
			batch.AddContent(genai.Text(t))
		}
		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini batch embed: %w", err)
		}
		out := make([][]float32, 0, len(resp.Embeddings))
		for _, e := range resp.Embeddings {
			out = append(out, e.Values)
		}
		return out, nil
	})
	g.client = cl

	counter := cl.GenerativeModel(cfg.EmbedModel)
	g.count = func(ctx context.Context, text string) (int, error) {
		resp, err := counter.CountTokens(ctx, genai.Text(text))
		if err != nil {
			return 0, fmt.Errorf("gemini count tokens: %w", err)
		}
		return int(resp.TotalTokens), nil
	}
	if info, err := em.Info(ctx); err == nil && info.InputTokenLimit > 0 {
		g.inputLimit = int(info.InputTokenLimit)
	}

	logger.Info("dense encoder ready", "model", cfg.EmbedModel, "dim", cfg.EmbedDim, "batch_size", cfg.EmbedBatchSize)
	return g, nil
}

func newEmbedder(cfg *config.Config, embed batchFunc) *GeminiEmbedder {
	batchSize := cfg.EmbedBatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	limit := rate.Inf
	if cfg.EmbedRPS > 0 {
		limit = rate.Limit(cfg.EmbedRPS)
	}
	return &GeminiEmbedder{
		modelName: cfg.EmbedModel,
		dim:       cfg.EmbedDim,
		maxTokens: cfg.EmbedMaxTokens,
		batchSize: batchSize,
		limiter:   rate.NewLimiter(limit, 1),
		tokenizer: chunker.WordTokenizer{},
		embed:     embed,

		inputLimit: cfg.EmbedInputMax,
	}
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiEmbedder) Dimensions() int { return g.dim }

func (g *GeminiEmbedder) MaxTokens() int { return g.maxTokens }

// Tokenizer returns the word tokenizer used to size chunks. It approximates the
// model's own tokenizer, which may split one word into several tokens;
// CheckTokenBudget verifies that MaxTokens words stay under the model limit.
func (g *GeminiEmbedder) Tokenizer() core.Tokenizer { return g.tokenizer }

// CheckTokenBudget counts a full-size chunk of technical text with the model's
// tokenizer and fails when it exceeds the model input limit.
func (g *GeminiEmbedder) CheckTokenBudget(ctx context.Context) error {
	if g.count == nil || g.inputLimit <= 0 {
		return nil
	}
	sample := g.sampleChunk()
	n, err := g.count(ctx, sample)
	if err != nil {
		logger.Warn("token budget check skipped", "model", g.modelName, "error", err)
		return nil
	}
	if n > g.inputLimit {
		return fmt.Errorf("%w: %d-token chunks measure %d model tokens, over the %d input limit; lower EMBED_MAX_TOKENS",
			core.ErrEncoderMismatch, g.maxTokens, n, g.inputLimit)
	}
	logger.Info("token budget checked", "model", g.modelName, "chunk_tokens", g.maxTokens, "model_tokens", n, "input_limit", g.inputLimit)
	return nil
}

// sampleChunk returns the first maxTokens word tokens of repeated budgetSample.
func (g *GeminiEmbedder) sampleChunk() string {
	text := budgetSample
	for g.tokenizer.Count(text) < g.maxTokens {
		text += budgetSample
	}
	return strings.Join(g.tokenizer.Tokenize(text)[:g.maxTokens], "")
}

// EmbedTexts embeds texts in batches of the configured size, preserving order.
// Every returned vector has exactly Dimensions() entries.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	out := make([][]float32, 0, len(texts))
	for lo := 0; lo < len(texts); lo += g.batchSize {
		hi := min(lo+g.batchSize, len(texts))

		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embed rate limit: %w", err)
		}
		vecs, err := g.embed(ctx, texts[lo:hi])
		if err != nil {
			return nil, err
		}
		if len(vecs) != hi-lo {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", core.ErrEncoderMismatch, len(vecs), hi-lo)
		}
		for i, v := range vecs {
			if len(v) != g.dim {
				return nil, fmt.Errorf("%w: vector %d has %d dims, want %d", core.ErrEncoderMismatch, lo+i, len(v), g.dim)
			}
		}
		out = append(out, vecs...)
	}

	logger.Debug("dense batch embedded", "texts", len(texts), "duration", time.Since(start))
	return out, nil
}
