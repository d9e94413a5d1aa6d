package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// News workbooks carry a banner in row 1 and the column header in row 2;
// article rows start at row 3 (1-based, matching the sheet display).
const (
	newsHeaderRow     = 2
	newsFirstDataRow  = 3
	newsMinRowColumns = 2
)

// ArticleRow is one virtual sub-document expanded from a news workbook.
type ArticleRow struct {
	Content  string
	Title    string
	Link     string
	Source   string
	RowIndex int
}

// Ident returns the document identifier for the row: the article URL when
// present, else a synthetic name derived from the workbook and row.
func (a ArticleRow) Ident(workbook string) string {
	if a.Link != "" {
		return a.Link
	}
	return fmt.Sprintf("%s#row%d", workbook, a.RowIndex)
}

// ParseArticleRows reads a news workbook and returns one ArticleRow per
// valid data row. Rows without content are skipped. The extractor is
// deliberately bypassed for spreadsheets; this is the only ingestion path
// that does not produce Elements.
func ParseArticleRows(data []byte, filename string) ([]ArticleRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening workbook %q; %w", filename, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %q has no sheets", filename)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q; %w", sheets[0], err)
	}

	if len(rows) < newsFirstDataRow {
		return nil, fmt.Errorf("no articles found in %q", filename)
	}

	cols := headerColumns(rows[newsHeaderRow-1])

	var articles []ArticleRow
	for i := newsFirstDataRow - 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) < newsMinRowColumns {
			continue
		}

		article := ArticleRow{
			Content:  cellAt(row, cols.content),
			Title:    cellAt(row, cols.title),
			Link:     cellAt(row, cols.link),
			Source:   cellAt(row, cols.source),
			RowIndex: i + 1,
		}

		if strings.TrimSpace(article.Content) == "" {
			continue
		}
		articles = append(articles, article)
	}

	if len(articles) == 0 {
		return nil, fmt.Errorf("no articles found in %q", filename)
	}

	return articles, nil
}

// columnMap holds the resolved zero-based column index per article field.
type columnMap struct {
	content int
	title   int
	link    int
	source  int
}

// headerColumns resolves field positions from the header row, falling
// back to the conventional layout (title, content, link, source) when a
// header label is missing.
func headerColumns(header []string) columnMap {
	cols := columnMap{content: 1, title: 0, link: 2, source: 3}
	for i, h := range header {
		switch normalizeHeader(h) {
		case "content", "article", "text", "body":
			cols.content = i
		case "title", "headline":
			cols.title = i
		case "link", "url", "articlelink":
			cols.link = i
		case "source", "outlet", "publisher":
			cols.source = i
		}
	}
	return cols
}

func normalizeHeader(h string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "")
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
