package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Hash is an offline bag-of-words embedder. Each word is hashed into one of
// dim buckets and the counts are L2-normalised. It needs no model server and
// always returns the same vector for the same text.
type Hash struct {
	dim int
}

const defaultHashDimension = 384

// NewHash returns a hash embedder with dim buckets; dim <= 0 means 384.
func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = defaultHashDimension
	}
	return &Hash{dim: dim}
}

func (h *Hash) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return h.embed(text), nil
}

func (h *Hash) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *Hash) embed(text string) []float32 {
	vec := make([]float32, h.dim)
	words := tokenize(text)
	if len(words) == 0 {
		// zero vectors have no direction; keep cosine distance defined
		vec[0] = 1
		return vec
	}

	for _, w := range words {
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		vec[f.Sum32()%uint32(h.dim)]++
	}

	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := float32(1 / math.Sqrt(sumSq))
	for i := range vec {
		vec[i] *= norm
	}
	return vec
}

// tokenize lower-cases text and splits it on anything that is not a letter or
// digit. Stop words are dropped unless nothing else is left.
func tokenize(text string) []string {
	all := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := make([]string, 0, len(all))
	for _, w := range all {
		if !stopWords[w] {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return all
	}
	return words
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true, "if": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true, "am": true,
	"i": true, "me": true, "my": true, "we": true, "our": true, "you": true, "your": true,
	"it": true, "its": true, "they": true, "them": true, "their": true,
	"what": true, "which": true, "who": true, "whom": true, "this": true, "that": true, "these": true, "those": true,
	"do": true, "does": true, "did": true, "have": true, "has": true, "had": true,
	"of": true, "at": true, "by": true, "for": true, "with": true, "about": true, "to": true, "from": true,
	"in": true, "on": true, "into": true, "as": true, "so": true, "than": true, "too": true, "very": true,
	"can": true, "will": true, "just": true, "should": true, "how": true, "when": true, "where": true, "why": true,
	"any": true, "some": true, "there": true, "here": true, "s": true, "t": true,
}
