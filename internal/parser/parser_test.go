package parser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtract_Text(t *testing.T) {
	path := writeFile(t, "notes.txt", "  first line\nsecond line \n")
	got, err := Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line", got)
}

func TestExtract_Unsupported(t *testing.T) {
	path := writeFile(t, "binary.exe", "MZ")
	_, err := Extract(context.Background(), path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrValidation))
	assert.False(t, Supported("binary.exe"))
	assert.True(t, Supported("Report.PDF"))
}

func TestExtract_MissingFileIsExtractionError(t *testing.T) {
	_, err := Extract(context.Background(), filepath.Join(t.TempDir(), "gone.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrExtraction))
}

func TestExtract_CSVSemicolon(t *testing.T) {
	path := writeFile(t, "prices.csv", "name;price\napple; 1.20\n;\npear;0.80\n")
	got, err := Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "name\tprice\napple\t1.20\npear\t0.80", got)
}

func TestSniffDelimiter(t *testing.T) {
	assert.Equal(t, ',', sniffDelimiter([]byte("a,b,c\n1,2,3\n")))
	assert.Equal(t, '\t', sniffDelimiter([]byte("a\tb\n1\t2\n")))
	assert.Equal(t, '|', sniffDelimiter([]byte("a|b|c\n1|2|3\n")))
	assert.Equal(t, ',', sniffDelimiter([]byte("single column\nvalue\n")))
}

func TestExtract_Markdown(t *testing.T) {
	src := "# Title\n\nSome *emphasis* and a [link](http://example.com).\n\n```go\nfmt.Println(1)\n```\n\n- item one\n- item two\n"
	path := writeFile(t, "readme.md", src)

	got, err := Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, got, "Title")
	assert.Contains(t, got, "Some emphasis and a link.")
	assert.Contains(t, got, "fmt.Println(1)")
	assert.Contains(t, got, "item two")
	assert.NotContains(t, got, "http://example.com")
	assert.NotContains(t, got, "#")
}

func TestExtract_Workbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsm")
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "region"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "sales"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "north"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 42))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	got, err := Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, got, "Sheet: Sheet1")
	assert.Contains(t, got, "region\tsales")
	assert.Contains(t, got, "north\t42")
}

func TestExtractTextFromXML(t *testing.T) {
	slide := `<p:sp><a:t>Hello</a:t><a:tab/><a:t xml:space="preserve">world</a:t><a:t/></p:sp>`
	assert.Equal(t, "Hello world ", extractTextFromXML(slide, "a:t", " "))

	para := `<w:p><w:r><w:t>Quar</w:t></w:r><w:r><w:tab/><w:t>terly</w:t></w:r></w:p>`
	assert.Equal(t, "Quarterly", extractTextFromXML(para, "w:t", ""))

	ods := `<text:p>Row one</text:p><text:p text:style-name="P1">Row <text:span>two</text:span></text:p>`
	assert.Equal(t, "Row one\nRow two\n", extractTextFromXML(ods, "text:p", "\n"))

	escaped := `<w:t>R&amp;D &lt;team&gt; &quot;Q1&quot; &#8364;5</w:t>`
	assert.Equal(t, `R&D <team> "Q1" €5`, extractTextFromXML(escaped, "w:t", ""))
}
