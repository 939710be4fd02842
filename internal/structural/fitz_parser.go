// Package structural implements the local structural pre-pass over source
// documents using MuPDF via go-fitz. The pass is deterministic CPU work: it
// renders no network calls and its output feeds the quality router.
package structural

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"

	"docsieve/internal/domain"
)

// Parser implements port.StructuralParser on top of go-fitz.
type Parser struct{}

// NewParser creates a structural parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse opens the document at path and runs the structural pass.
func (p *Parser) Parse(ctx context.Context, path string) (*domain.DocumentStructure, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("structural: %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("structural: stat %s: %w", path, err)
	}
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("structural: opening %s: %v: %w", path, err, domain.ErrUnprocessable)
	}
	defer func() { _ = doc.Close() }()

	return analyze(ctx, doc)
}

// ParseBytes runs the structural pass over an in-memory document.
func (p *Parser) ParseBytes(ctx context.Context, data []byte, contentType string) (*domain.DocumentStructure, error) {
	if _, ok := domain.AllowedContentTypes[contentType]; !ok {
		return nil, fmt.Errorf("structural: content type %s: %w", contentType, domain.ErrUnsupportedFileType)
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("structural: opening document: %v: %w", err, domain.ErrUnprocessable)
	}
	defer func() { _ = doc.Close() }()

	return analyze(ctx, doc)
}

func analyze(ctx context.Context, doc *fitz.Document) (*domain.DocumentStructure, error) {
	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, fmt.Errorf("structural: document has no pages: %w", domain.ErrUnprocessable)
	}

	var (
		markdown      strings.Builder
		tables        []domain.TableExtract
		boxes         = map[string]domain.BBox{}
		elementCount  int
		pagesWithText int
	)

	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("structural: extracting page %d: %v: %w", i+1, err, domain.ErrUnprocessable)
		}

		bound, err := doc.Bound(i)
		if err != nil {
			return nil, fmt.Errorf("structural: page %d bounds: %v: %w", i+1, err, domain.ErrUnprocessable)
		}

		page := analyzePage(i+1, text, float64(bound.Dx()), float64(bound.Dy()))
		if page.hasText {
			pagesWithText++
		}
		elementCount += len(page.elements)
		tables = append(tables, page.tables...)
		for id, box := range page.boxes {
			boxes[id] = box
		}

		if i > 0 {
			markdown.WriteString("\n")
		}
		markdown.WriteString(fmt.Sprintf("## Page %d\n\n", i+1))
		markdown.WriteString(page.markdown)
	}

	return &domain.DocumentStructure{
		Markdown:      markdown.String(),
		Tables:        tables,
		BoundingBoxes: boxes,
		ElementCount:  elementCount,
		QualityScore:  scoreQuality(pageCount, pagesWithText, elementCount, tables),
	}, nil
}

// pageAnalysis is the per-page view produced by analyzePage.
type pageAnalysis struct {
	markdown string
	elements []string
	tables   []domain.TableExtract
	boxes    map[string]domain.BBox
	hasText  bool
}

// analyzePage splits page text into blocks and classifies table-like regions.
// Column detection is heuristic: rows whose cells are separated by tabs or
// runs of two or more spaces, appearing in at least two consecutive lines with
// a matching column count.
func analyzePage(pageNum int, text string, width, height float64) pageAnalysis {
	out := pageAnalysis{boxes: map[string]domain.BBox{}}

	lines := strings.Split(text, "\n")
	var md strings.Builder
	var tableRows [][]string

	flushTable := func() {
		if len(tableRows) >= 2 {
			table := domain.TableExtract{
				Page:    pageNum,
				Headers: tableRows[0],
				Rows:    tableRows[1:],
			}
			out.tables = append(out.tables, table)
			md.WriteString(renderTable(table))
		} else {
			for _, row := range tableRows {
				md.WriteString(strings.Join(row, " "))
				md.WriteString("\n")
			}
		}
		tableRows = nil
	}

	lineHeight := 0.0
	if len(lines) > 0 {
		lineHeight = height / float64(len(lines))
	}

	for idx, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flushTable()
			continue
		}
		out.hasText = true
		out.elements = append(out.elements, trimmed)

		id := fmt.Sprintf("p%d-e%d", pageNum, len(out.elements))
		out.boxes[id] = domain.BBox{
			Page: pageNum,
			X0:   0,
			Y0:   float64(idx) * lineHeight,
			X1:   width,
			Y1:   float64(idx+1) * lineHeight,
		}

		cells := splitColumns(line)
		if len(cells) >= 2 {
			if len(tableRows) == 0 || len(tableRows[len(tableRows)-1]) == len(cells) {
				tableRows = append(tableRows, cells)
				continue
			}
		}
		flushTable()
		md.WriteString(trimmed)
		md.WriteString("\n")
	}
	flushTable()

	out.markdown = md.String()
	return out
}

// splitColumns breaks a line into cells on tabs or runs of two or more
// spaces. A line that produces a single cell is ordinary prose.
func splitColumns(line string) []string {
	normalized := strings.ReplaceAll(line, "\t", "  ")
	parts := strings.Split(normalized, "  ")
	var cells []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}

func renderTable(t domain.TableExtract) string {
	var b strings.Builder
	b.WriteString("| " + strings.Join(t.Headers, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(t.Headers)) + "\n")
	for _, row := range t.Rows {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return b.String()
}

// scoreQuality estimates how faithfully the text layer represents the
// document. Scanned documents with no extractable text score near zero and
// get routed to the vision fallback.
func scoreQuality(pageCount, pagesWithText, elementCount int, tables []domain.TableExtract) float64 {
	if pageCount == 0 || pagesWithText == 0 {
		return 0
	}
	coverage := float64(pagesWithText) / float64(pageCount)

	// Sparse text layers (a handful of OCR artifacts on an otherwise scanned
	// page) should not pass as extractable.
	density := float64(elementCount) / float64(pageCount)
	densityScore := density / 10
	if densityScore > 1 {
		densityScore = 1
	}

	score := 0.6*coverage + 0.4*densityScore
	if len(tables) > 0 && score < 0.95 {
		score += 0.05
	}
	if score > 1 {
		score = 1
	}
	return score
}
