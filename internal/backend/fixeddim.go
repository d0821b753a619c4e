package backend

import "context"

// ProjectVector deterministically projects a vector to the given width:
// truncate when longer, zero-pad when shorter. Keeps the stored vector
// schema stable across provider switches.
func ProjectVector(v []float32, dim int) []float32 {
	if dim <= 0 || len(v) == dim {
		return v
	}
	out := make([]float32, dim)
	copy(out, v)
	return out
}

// fixedDimEmbedder wraps an Embedder and projects every output vector to a
// fixed width. Dimension() reports the projected width, not the native one.
type fixedDimEmbedder struct {
	inner Embedder
	dim   int
}

// FixedDim wraps an embedder so all vectors it returns have exactly dim
// components. A non-positive dim returns the embedder unchanged.
func FixedDim(inner Embedder, dim int) Embedder {
	if dim <= 0 || inner == nil {
		return inner
	}
	return &fixedDimEmbedder{inner: inner, dim: dim}
}

func (f *fixedDimEmbedder) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	emb, err := f.inner.GenerateEmbedding(ctx, req)
	if err != nil {
		return nil, err
	}
	f.project(emb)
	return emb, nil
}

func (f *fixedDimEmbedder) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	resp, err := f.inner.GenerateBatch(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, emb := range resp.Embeddings {
		f.project(emb)
	}
	return resp, nil
}

func (f *fixedDimEmbedder) project(emb *Embedding) {
	emb.Vector = ProjectVector(emb.Vector, f.dim)
	emb.Dimension = f.dim
}

func (f *fixedDimEmbedder) Dimension() int {
	return f.dim
}

func (f *fixedDimEmbedder) Provider() string {
	return f.inner.Provider()
}

func (f *fixedDimEmbedder) Model() string {
	return f.inner.Model()
}

func (f *fixedDimEmbedder) Close() error {
	return f.inner.Close()
}
