// Package extract turns raw document bytes into an ordered sequence of
// typed layout elements. Extraction runs at most once per document; the
// element list is shared by every downstream ingestion stage.
package extract

import "strings"

// ElementType classifies a layout element produced by the partitioner.
type ElementType string

const (
	ElementTitle         ElementType = "Title"
	ElementNarrativeText ElementType = "NarrativeText"
	ElementListItem      ElementType = "ListItem"
	ElementTable         ElementType = "Table"
	ElementFigureCaption ElementType = "FigureCaption"
	ElementPageBreak     ElementType = "PageBreak"
	ElementHeader        ElementType = "Header"
	ElementFooter        ElementType = "Footer"
	ElementUncategorized ElementType = "UncategorizedText"
)

// Element is one typed span of document layout. Elements are ephemeral:
// they live in memory between the extractor and the downstream stages and
// are never persisted.
type Element struct {
	Type       ElementType    `json:"type"`
	Text       string         `json:"text"`
	PageNumber int            `json:"page_number,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// IsTitle reports whether the element is a section heading.
func (e Element) IsTitle() bool {
	return e.Type == ElementTitle
}

// IsTable reports whether the element carries tabular content.
func (e Element) IsTable() bool {
	return e.Type == ElementTable
}

// FullText joins the text of all elements with blank lines, the canonical
// full-document view consumed by summarization and graph extraction.
func FullText(elements []Element) string {
	parts := make([]string, 0, len(elements))
	for _, el := range elements {
		if t := strings.TrimSpace(el.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// StructuredContent is the content view consumed by summarizers: the full
// narrative text plus separated tables and figure captions.
type StructuredContent struct {
	FullText       string
	Tables         []string
	FigureCaptions []string
}

// BuildStructuredContent separates narrative, tabular, and caption content.
func BuildStructuredContent(elements []Element) StructuredContent {
	var sc StructuredContent
	var narrative []string
	for _, el := range elements {
		text := strings.TrimSpace(el.Text)
		if text == "" {
			continue
		}
		switch el.Type {
		case ElementTable:
			sc.Tables = append(sc.Tables, text)
		case ElementFigureCaption:
			sc.FigureCaptions = append(sc.FigureCaptions, text)
		default:
			narrative = append(narrative, text)
		}
	}
	sc.FullText = strings.Join(narrative, "\n\n")
	return sc
}
