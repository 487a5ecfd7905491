package processor

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"loan-rag/internal/chunker"
	"loan-rag/internal/helper"
	"loan-rag/internal/models"
)

const (
	documentHeader = "# Bank of Maharashtra Loan Products Knowledge Base\n\n" +
		"This document contains comprehensive information about various loan products offered by Bank of Maharashtra.\n\n"
	defaultLoanType = "Other Loans"
	defaultLoanName = "Unknown Loan"
	defaultURL      = "N/A"
)

var (
	multiSpace   = regexp.MustCompile(`[ \t]+`)
	multiNewline = regexp.MustCompile(`\n{3,}`)
)

// LoadRecords reads the raw records JSON array.
func LoadRecords(path string) ([]models.RawRecord, error) {
	var records []models.RawRecord
	if err := helper.ReadJSON(path, &records); err != nil {
		return nil, err
	}
	log.Info().Int("records", len(records)).Str("file", path).Msg("Loaded raw records")
	return records, nil
}

// SaveRecords writes records as a JSON array.
func SaveRecords(path string, records []models.RawRecord) error {
	return helper.WriteJSON(path, records)
}

// Consolidate builds one document from the successful records, grouped by
// loan type in sorted order. Records keep their input order inside a group and
// records whose content is blank after normalisation are skipped.
func Consolidate(records []models.RawRecord) string {
	groups := make(map[string][]models.RawRecord)
	for _, r := range records {
		if !r.Success {
			continue
		}
		loanType := strings.TrimSpace(r.LoanType)
		if loanType == "" {
			loanType = defaultLoanType
		}
		groups[loanType] = append(groups[loanType], r)
	}
	types := make([]string, 0, len(groups))
	for t := range groups {
		types = append(types, t)
	}
	sort.Strings(types)

	var b strings.Builder
	b.WriteString(documentHeader)
	for _, t := range types {
		fmt.Fprintf(&b, "\n## %s\n\n", t)
		for _, r := range groups[t] {
			content := NormalizeText(r.Content)
			if content == "" {
				continue
			}
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", orDefault(r.LoanName, defaultLoanName), content)
			fmt.Fprintf(&b, "Source: %s\n\n---\n\n", orDefault(r.URL, defaultURL))
		}
	}
	log.Info().Int("records", len(records)).Int("loan_types", len(types)).Msg("Consolidated loan data")
	return b.String()
}

// NormalizeText collapses runs of spaces, trims every line and drops blank lines.
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = multiSpace.ReplaceAllString(text, " ")
	text = multiNewline.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// Process consolidates the raw records file, writes the knowledge base and a
// chunk manifest, and returns the manifest.
func Process(rawPath, knowledgeBasePath, manifestPath string, c *chunker.Chunker) (*models.Manifest, error) {
	records, err := LoadRecords(rawPath)
	if err != nil {
		return nil, err
	}

	doc := Consolidate(records)
	if err := helper.WriteFile(knowledgeBasePath, []byte(doc)); err != nil {
		return nil, err
	}
	log.Info().Str("file", knowledgeBasePath).Int("bytes", len(doc)).Msg("Saved consolidated knowledge base")

	manifest, err := NewManifest(doc, c)
	if err != nil {
		return nil, err
	}
	if err := SaveManifest(manifestPath, manifest); err != nil {
		return nil, err
	}
	log.Info().Str("file", manifestPath).Int("fragments", len(manifest.Fragments)).
		Str("generation", manifest.Generation).Msg("Saved chunk manifest")
	return manifest, nil
}

// NewManifest chunks doc and stamps the result with a fresh generation id.
func NewManifest(doc string, c *chunker.Chunker) (*models.Manifest, error) {
	gen, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	frags := c.Chunk(doc)
	if frags == nil {
		frags = []models.Fragment{}
	}
	return &models.Manifest{
		Generation:   gen,
		CreatedAt:    time.Now().UTC(),
		ChunkSize:    c.Size(),
		ChunkOverlap: c.Overlap(),
		Fragments:    frags,
	}, nil
}

func SaveManifest(path string, m *models.Manifest) error {
	return helper.WriteJSON(path, m)
}

// LoadManifest reads a manifest and checks the fragment invariants.
func LoadManifest(path string) (*models.Manifest, error) {
	var m models.Manifest
	if err := helper.ReadJSON(path, &m); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(m.Fragments))
	for i, f := range m.Fragments {
		switch {
		case f.ID == "":
			return nil, fmt.Errorf("manifest %s: fragment %d has no id", path, i)
		case seen[f.ID]:
			return nil, fmt.Errorf("manifest %s: duplicate fragment id %s", path, f.ID)
		case strings.TrimSpace(f.Text) == "":
			return nil, fmt.Errorf("manifest %s: fragment %s is empty", path, f.ID)
		case f.Position < 0 || f.Position >= f.Total:
			return nil, fmt.Errorf("manifest %s: fragment %s position %d outside [0,%d)", path, f.ID, f.Position, f.Total)
		}
		seen[f.ID] = true
	}
	return &m, nil
}

// ReadKnowledgeBase returns the consolidated document written by Process.
func ReadKnowledgeBase(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read knowledge base %s: %w", path, err)
	}
	return string(b), nil
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
