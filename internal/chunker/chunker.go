package chunker

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"loan-rag/internal/models"
)

const (
	defaultChunkSize    = 500 // runes
	defaultChunkOverlap = 50  // runes
)

// DefaultSeparators lists split points from coarsest to finest. The empty
// separator means a raw cut at the size limit.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits a consolidated document into overlapping, labelled fragments.
type Chunker struct {
	size       int
	overlap    int
	separators []string
	rules      []Rule
}

// New returns a chunker with the given target size and overlap, both in runes.
// Out of range values are normalised rather than rejected.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{
		size:       size,
		overlap:    overlap,
		separators: DefaultSeparators,
		rules:      DefaultRules,
	}
}

// WithRules replaces the labelling rules.
func (c *Chunker) WithRules(rules []Rule) *Chunker {
	c.rules = rules
	return c
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text into fragments with ids chunk_0000, chunk_0001, ...
func (c *Chunker) Chunk(text string) []models.Fragment {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var texts []string
	for _, raw := range c.merge(c.atoms(text, c.separators)) {
		if t := strings.TrimSpace(raw); t != "" {
			texts = append(texts, t)
		}
	}

	fragments := make([]models.Fragment, len(texts))
	for i, t := range texts {
		fragments[i] = models.Fragment{
			ID:          fmt.Sprintf("chunk_%04d", i),
			Text:        t,
			SourceLabel: Label(t, c.rules),
			Position:    i,
			Total:       len(texts),
		}
	}
	log.Debug().Int("size", c.size).Int("overlap", c.overlap).Int("fragments", len(fragments)).Msg("Chunked document")
	return fragments
}

// atoms breaks text into pieces no longer than the target size. A separator is
// only given up for a finer one when a piece is still too long. Separators stay
// attached to the end of their piece, so joining the atoms yields text again.
func (c *Chunker) atoms(text string, separators []string) []string {
	if runeLen(text) <= c.size {
		return []string{text}
	}
	if len(separators) == 0 || separators[0] == "" {
		return hardCut(text, c.size-c.overlap)
	}

	sep, finer := separators[0], separators[1:]
	if !strings.Contains(text, sep) {
		return c.atoms(text, finer)
	}

	var out []string
	for _, piece := range strings.SplitAfter(text, sep) {
		if piece == "" {
			continue
		}
		out = append(out, c.atoms(piece, finer)...)
	}
	return out
}

// merge packs atoms greedily into chunks of at most size runes. Each new chunk
// starts with the tail of the previous one so that neighbours overlap.
func (c *Chunker) merge(atoms []string) []string {
	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	for _, a := range atoms {
		n := runeLen(a)
		if curLen > 0 && curLen+n > c.size {
			prev := cur.String()
			chunks = append(chunks, prev)
			cur.Reset()
			curLen = 0
			if seed := overlapTail(prev, min(c.overlap, c.size-n)); seed != "" {
				cur.WriteString(seed)
				curLen = runeLen(seed)
			}
		}
		cur.WriteString(a)
		curLen += n
	}
	if curLen > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// overlapTail returns at most n trailing runes of s, starting after the first
// whitespace in that window when there is one.
func overlapTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) > n {
		r = r[len(r)-n:]
	}
	for i, ch := range r {
		if unicode.IsSpace(ch) {
			if i+1 < len(r) {
				return string(r[i+1:])
			}
			break
		}
	}
	return string(r)
}

func hardCut(text string, size int) []string {
	r := []rune(text)
	out := make([]string, 0, len(r)/size+1)
	for start := 0; start < len(r); start += size {
		end := min(start+size, len(r))
		out = append(out, string(r[start:end]))
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
