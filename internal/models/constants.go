package models

const (
	// metadata keys stored with every indexed chunk
	MetaSource     = "source"
	MetaPageNumber = "page_number"
	MetaChunkID    = "chunk_id"

	ContextSeparator = "\n---\n"
	ThinkTag         = `(?s)<think>.*?</think>`
)
