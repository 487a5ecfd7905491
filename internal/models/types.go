package models

import (
	"strconv"
	"time"
)

// Fragment is a bounded span of the consolidated document, the unit of retrieval.
type Fragment struct {
	ID          string `json:"chunk_id"`
	Text        string `json:"text"`
	SourceLabel string `json:"loan_type"`
	Position    int    `json:"chunk_index"`
	Total       int    `json:"total_chunks"`
}

// Metadata keys stored next to each vector.
const (
	MetaLabel    = "loan_type"
	MetaPosition = "chunk_index"
	MetaTotal    = "total_chunks"
	MetaSeq      = "seq"
)

// Metadata flattens the fragment fields that are stored alongside the vector.
func (f Fragment) Metadata() map[string]string {
	return map[string]string{
		MetaLabel:    f.SourceLabel,
		MetaPosition: strconv.Itoa(f.Position),
		MetaTotal:    strconv.Itoa(f.Total),
	}
}

// FragmentFromMetadata rebuilds a fragment from a stored id, text and metadata.
func FragmentFromMetadata(id, text string, meta map[string]string) Fragment {
	pos, _ := strconv.Atoi(meta[MetaPosition])
	total, _ := strconv.Atoi(meta[MetaTotal])
	label := meta[MetaLabel]
	if label == "" {
		label = DefaultLabel
	}
	return Fragment{ID: id, Text: text, SourceLabel: label, Position: pos, Total: total}
}

// IndexEntry pairs a fragment with its embedding.
type IndexEntry struct {
	Fragment Fragment
	Vector   []float32
}

// LatestByID drops earlier duplicates of an id, keeping the last entry at the
// position where the id first appeared.
func LatestByID(entries []IndexEntry) []IndexEntry {
	pos := make(map[string]int, len(entries))
	out := make([]IndexEntry, 0, len(entries))
	for _, e := range entries {
		if i, ok := pos[e.Fragment.ID]; ok {
			out[i] = e
			continue
		}
		pos[e.Fragment.ID] = len(out)
		out = append(out, e)
	}
	return out
}

// SearchResult is one nearest-neighbour hit. Distance is cosine distance, 0 means identical.
type SearchResult struct {
	Fragment Fragment
	Distance float64
}

// QueryResponse is what Ask returns to the CLI, TUI and HTTP callers.
type QueryResponse struct {
	Question         string    `json:"question"`
	Answer           string    `json:"answer"`
	Sources          []string  `json:"sources"`
	Labels           []string  `json:"labels"`
	Distances        []float64 `json:"distances"`
	Confidence       float64   `json:"confidence"`
	GenerationFailed bool      `json:"generation_failed,omitempty"`
}

// RawRecord is one scraped or ingested loan page.
type RawRecord struct {
	Success  bool   `json:"success"`
	Content  string `json:"content"`
	LoanType string `json:"loan_type"`
	LoanName string `json:"loan_name"`
	URL      string `json:"url"`
	Error    string `json:"error,omitempty"`
}

// Manifest is the persisted output of the processing step, read back by build-index.
type Manifest struct {
	Generation   string     `json:"generation"`
	CreatedAt    time.Time  `json:"created_at"`
	ChunkSize    int        `json:"chunk_size"`
	ChunkOverlap int        `json:"chunk_overlap"`
	Fragments    []Fragment `json:"fragments"`
}
