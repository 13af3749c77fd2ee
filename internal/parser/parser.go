package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"html"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"docchat/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// TesseractBin is the OCR binary used for image files.
var TesseractBin = "tesseract"

var supported = map[string]bool{
	".txt": true, ".md": true, ".pdf": true, ".docx": true, ".pptx": true,
	".xlsx": true, ".xlsm": true, ".xltx": true, ".ods": true, ".csv": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true,
}

// Supported reports whether filename has an extension Extract understands.
func Supported(filename string) bool {
	return supported[strings.ToLower(filepath.Ext(filename))]
}

// Extract returns the plain text of the file at filePath. An empty string with
// a nil error means the file parsed but held no text.
func Extract(ctx context.Context, filePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	if !supported[ext] {
		return "", models.NewValidationError("extract", fmt.Sprintf("unsupported file format: %s", ext))
	}

	var (
		content string
		err     error
	)
	switch ext {
	case ".pdf":
		content, err = extractPDF(filePath)
	case ".docx":
		content, err = extractDOCX(filePath)
	case ".pptx":
		content, err = extractPPTX(filePath)
	case ".xlsx":
		content, err = extractXLSX(filePath)
	case ".xlsm", ".xltx":
		content, err = extractWorkbook(filePath)
	case ".ods":
		content, err = extractODS(filePath)
	case ".csv":
		content, err = extractCSV(filePath)
	case ".md":
		content, err = extractMarkdown(filePath)
	case ".txt":
		content, err = extractText(filePath)
	default:
		content, err = extractImage(ctx, filePath)
	}
	if err != nil {
		return "", models.NewExtractionError("extract", filepath.Base(filePath), err)
	}

	log.Debug().Str("file", filePath).Int("chars", len(content)).Msg("extracted text")
	return strings.TrimSpace(content), nil
}

func extractPDF(filePath string) (string, error) {
	f, err := os.Open(filePath)
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
		b.WriteString("\n")
	}
	return b.String(), nil
}

func extractDOCX(filePath string) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	var paragraphs []string
	for _, p := range strings.Split(r.Editable().GetContent(), "</w:p>") {
		if t := extractTextFromXML(p, "w:t", ""); strings.TrimSpace(t) != "" {
			paragraphs = append(paragraphs, t)
		}
	}
	return strings.Join(paragraphs, "\n"), nil
}

func extractPPTX(filePath string) (string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for _, file := range f.File {
		if !strings.HasPrefix(file.Name, "ppt/slides/slide") {
			continue
		}
		data, err := readZipFile(file)
		if err != nil {
			log.Warn().Err(err).Str("slide", file.Name).Msg("skipping unreadable slide")
			continue
		}
		b.WriteString(extractTextFromXML(string(data), "a:t", " "))
		b.WriteString("\n")
	}
	return b.String(), nil
}

func extractXLSX(filePath string) (string, error) {
	f, err := xlsx.OpenFile(filePath)
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

// extractWorkbook reads the macro and template workbook variants.
func extractWorkbook(filePath string) (string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			log.Warn().Err(err).Str("sheet", sheetName).Msg("skipping unreadable sheet")
			continue
		}
		writeSheet(&b, sheetName, rows)
	}
	return b.String(), nil
}

func extractODS(filePath string) (string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	for _, file := range f.File {
		if file.Name != "content.xml" {
			continue
		}
		data, err := readZipFile(file)
		if err != nil {
			return "", err
		}
		return extractTextFromXML(string(data), "text:p", "\n"), nil
	}
	return "", fmt.Errorf("content.xml not found")
}

func writeSheet(b *strings.Builder, name string, rows [][]string) {
	b.WriteString(fmt.Sprintf("Sheet: %s\n", name))
	for _, row := range rows {
		var cells []string
		for _, cell := range row {
			if cell != "" {
				cells = append(cells, cell)
			}
		}
		if len(cells) > 0 {
			b.WriteString(strings.Join(cells, "\t"))
			b.WriteString("\n")
		}
	}
}

func extractCSV(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var lines []string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		var cells []string
		for _, cell := range record {
			if c := strings.TrimSpace(cell); c != "" {
				cells = append(cells, c)
			}
		}
		if len(cells) > 0 {
			lines = append(lines, strings.Join(cells, "\t"))
		}
	}
	return strings.Join(lines, "\n"), nil
}

// sniffDelimiter picks the candidate that splits the first lines most consistently.
func sniffDelimiter(data []byte) rune {
	sample := string(data[:min(len(data), 1024)])
	lines := strings.Split(strings.TrimSpace(sample), "\n")
	if len(data) > len(sample) && len(lines) > 1 {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > 5 {
		lines = lines[:5]
	}

	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		count := strings.Count(lines[0], string(d))
		if count == 0 {
			continue
		}
		consistent := true
		for _, line := range lines[1:] {
			if strings.Count(line, string(d)) != count {
				consistent = false
				break
			}
		}
		if consistent && count > bestCount {
			best, bestCount = d, count
		}
	}
	return best
}

func extractMarkdown(filePath string) (string, error) {
	src, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return markdownToText(src)
}

// markdownToText walks the goldmark AST and keeps only the readable text.
func markdownToText(src []byte) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && b.Len() > 0 {
				b.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteString(" ")
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

func extractText(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func extractImage(ctx context.Context, filePath string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, TesseractBin, filePath, "stdout")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ocr %s: %w: %s", filepath.Base(filePath), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// extractTextFromXML collects the contents of every <tag> element, each
// followed by sep.
func extractTextFromXML(xmlContent, tag, sep string) string {
	open, closing := "<"+tag, "</"+tag+">"
	var b strings.Builder
	rest := xmlContent
	for {
		i := strings.Index(rest, open)
		if i < 0 {
			break
		}
		rest = rest[i+len(open):]
		// skip longer tag names sharing the prefix, e.g. <w:tab> for <w:t
		if len(rest) == 0 || (rest[0] != '>' && rest[0] != ' ' && rest[0] != '/') {
			continue
		}
		gt := strings.Index(rest, ">")
		if gt < 0 {
			break
		}
		if gt > 0 && rest[gt-1] == '/' {
			rest = rest[gt+1:]
			continue
		}
		rest = rest[gt+1:]
		end := strings.Index(rest, closing)
		if end < 0 {
			break
		}
		// entities are decoded after the markup is gone so &lt; stays text
		b.WriteString(html.UnescapeString(stripTags(rest[:end])))
		b.WriteString(sep)
		rest = rest[end+len(closing):]
	}
	return b.String()
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
