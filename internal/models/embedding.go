package models

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content    string
	PageNumber int
	ChunkID    int
}

// ChunkEmbedding is a chunk ready for indexing: its text, its vector and the
// attribution metadata stored beside it.
type ChunkEmbedding struct {
	Content        string
	Embedding      []float32
	SourceFilename string
	PageNumber     int
	ChunkID        int
}
