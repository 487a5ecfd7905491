package parser

import (
	"archive/zip"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"loan-rag/internal/chunker"
	"loan-rag/internal/models"
)

// ErrUnsupportedFormat is returned for file extensions without a parser.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var (
	xmlTag      = regexp.MustCompile(`<[^>]+>`)
	slideNumber = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
)

// Supported reports whether ParseFile handles the extension of path.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".docx", ".pptx", ".xlsx", ".xlsm", ".xltx", ".xltm", ".txt", ".md", ".markdown":
		return true
	}
	return false
}

// ParseFile extracts the plain text of a local document.
func ParseFile(path string) (string, error) {
	var (
		text string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		text, err = parsePDF(path)
	case ".docx":
		text, err = parseDOCX(path)
	case ".pptx":
		text, err = parsePPTX(path)
	case ".xlsx":
		text, err = parseXLSX(path)
	case ".xlsm", ".xltx", ".xltm":
		text, err = parseExcelize(path)
	case ".txt":
		text, err = parseText(path)
	case ".md", ".markdown":
		text, err = parseMarkdownFile(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return strings.TrimSpace(text), nil
}

// ParseToRecord turns one file into a raw record. Parse failures produce a
// record with Success=false so they show up next to scraped failures.
func ParseToRecord(path string) models.RawRecord {
	rec := models.RawRecord{
		LoanName: loanName(path),
		URL:      fileURL(path),
	}
	text, err := ParseFile(path)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	if text == "" {
		rec.Error = "no text content"
		return rec
	}
	rec.Success = true
	rec.Content = text
	rec.LoanType = chunker.Label(rec.LoanName+"\n"+text, chunker.DefaultRules)
	return rec
}

// ParseDir walks root and parses every supported file in lexical order.
// Unsupported files are logged and skipped.
func ParseDir(root string) ([]models.RawRecord, error) {
	var records []models.RawRecord
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !Supported(path) {
			log.Warn().Str("file", path).Msg("Skipping unsupported file")
			return nil
		}
		rec := ParseToRecord(path)
		if !rec.Success {
			log.Warn().Str("file", path).Str("error", rec.Error).Msg("Failed to parse file")
		} else {
			log.Debug().Str("file", path).Str("loan_type", rec.LoanType).Int("chars", len(rec.Content)).Msg("Parsed file")
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return records, nil
}

func parsePDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}
	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(pageText)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

func parseDOCX(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", err
	}
	defer r.Close()
	return xmlText(r.Editable().GetContent(), "</w:p>"), nil
}

func parsePPTX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		if m := slideNumber.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{num: n, file: f})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var b strings.Builder
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return "", err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		if text := strings.TrimSpace(xmlText(string(data), "</a:p>")); text != "" {
			fmt.Fprintf(&b, "## Slide %d\n%s\n\n", s.num, text)
		}
	}
	return b.String(), nil
}

func parseXLSX(path string) (string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, sheet := range f.Sheets {
		rows := make([][]string, 0, len(sheet.Rows))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		writeSheet(&b, sheet.Name, rows)
	}
	return b.String(), nil
}

func parseExcelize(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return "", fmt.Errorf("sheet %s: %w", name, err)
		}
		writeSheet(&b, name, rows)
	}
	return b.String(), nil
}

func parseText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parseMarkdownFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return MarkdownToText(data)
}

// writeSheet renders non-empty rows as tab separated lines under a sheet heading.
func writeSheet(b *strings.Builder, name string, rows [][]string) {
	var body strings.Builder
	for _, row := range rows {
		line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
		if line != "" {
			body.WriteString(line)
			body.WriteString("\n")
		}
	}
	if body.Len() == 0 {
		return
	}
	fmt.Fprintf(b, "## Sheet: %s\n%s\n", name, body.String())
}

// xmlText strips tags from office XML, turning paragraph ends into newlines.
func xmlText(content, paragraphEnd string) string {
	content = strings.ReplaceAll(content, paragraphEnd, "\n")
	content = xmlTag.ReplaceAllString(content, "")
	return html.UnescapeString(content)
}

func loanName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.Join(strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	}), " ")
}

func fileURL(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return "file://" + filepath.ToSlash(path)
}
