package chunkers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/extract"
)

const scientificDataChunkerName = "scientificdata_table"

// Tables above the split threshold break into row groups that replicate
// the header. The hard cap is an absolute ceiling: any piece still above
// it gets an emergency character split with lineage metadata.
const (
	tableSplitThreshold = 800
	tableMaxDataRows    = 5
	tableHardCapChars   = 950
	tableProseChunkSize = 512
	tableOverlapRatio   = 0.15
)

// ScientificDataChunker handles table-heavy scientific datasets. Tables
// are split by rows so each chunk stays self-describing; surrounding
// prose uses the recursive splitter.
type ScientificDataChunker struct {
	logger *slog.Logger
}

// NewScientificDataChunker creates the scientific-data chunker.
func NewScientificDataChunker(logger *slog.Logger) *ScientificDataChunker {
	return &ScientificDataChunker{logger: logger}
}

// Name returns the chunker's identifier.
func (c *ScientificDataChunker) Name() string {
	return scientificDataChunkerName
}

// Chunk splits elements into table row-group chunks and prose chunks.
func (c *ScientificDataChunker) Chunk(ctx context.Context, elements []extract.Element, filename string) ([]Chunk, error) {
	if len(elements) == 0 {
		c.logger.Warn("no elements to chunk", "filename", filename)
		return []Chunk{}, nil
	}

	var chunks []Chunk
	var prose []string
	tableIndex := 0

	flushProse := func() {
		if len(prose) == 0 {
			return
		}
		splitter := NewRecursiveSplitter(tableProseChunkSize, tableOverlapRatio)
		for _, piece := range splitter.Split(strings.Join(prose, "\n\n")) {
			ch := newChunk(filename, bucket.ScientificData, piece, len(chunks), scientificDataChunkerName)
			ch.Metadata[MetaSectionType] = SectionOther
			chunks = append(chunks, ch)
		}
		prose = prose[:0]
	}

	for _, el := range elements {
		if ctx.Err() != nil {
			return chunks, ctx.Err()
		}
		text := strings.TrimSpace(el.Text)
		if text == "" {
			continue
		}

		if el.Type == extract.ElementTable {
			flushProse()
			tableIndex++
			chunks = append(chunks, c.chunkTable(filename, text, tableIndex, len(chunks))...)
			continue
		}
		prose = append(prose, text)
	}
	flushProse()

	return reindex(chunks), nil
}

// chunkTable splits one table into row-group chunks. Tables at or below
// the split threshold stay whole.
func (c *ScientificDataChunker) chunkTable(filename, table string, tableIndex, baseIndex int) []Chunk {
	if len(table) <= tableSplitThreshold {
		ch := newChunk(filename, bucket.ScientificData, table, baseIndex, scientificDataChunkerName)
		ch.Metadata[MetaSectionType] = SectionTables
		ch.Metadata[MetaTableGroup] = fmt.Sprintf("table_%d", tableIndex)
		return []Chunk{ch}
	}

	groups := c.rowGroups(table)
	if len(groups) == 0 {
		// No row structure detected; fall back to character splitting.
		groups = NewRecursiveSplitter(tableSplitThreshold, 0).Split(table)
	}

	var out []Chunk
	groupNum := 0
	for _, group := range groups {
		groupNum++
		groupID := fmt.Sprintf("table_%d_group_%d", tableIndex, groupNum)

		if len(group) <= tableHardCapChars {
			ch := newChunk(filename, bucket.ScientificData, group, baseIndex+len(out), scientificDataChunkerName)
			ch.Metadata[MetaSectionType] = SectionTables
			ch.Metadata[MetaTableGroup] = groupID
			out = append(out, ch)
			continue
		}

		// Emergency split: the group exceeded the hard cap even after
		// row grouping. Record lineage so retrieval can reassemble.
		c.logger.Warn("table group exceeds hard cap, emergency split",
			"filename", filename,
			"group", groupID,
			"chars", len(group))
		parts := NewRecursiveSplitter(tableHardCapChars, 0).Split(group)
		for partNum, part := range parts {
			ch := newChunk(filename, bucket.ScientificData, part, baseIndex+len(out), scientificDataChunkerName)
			ch.Metadata[MetaSectionType] = SectionTables
			ch.Metadata[MetaTableGroup] = groupID
			ch.Metadata[MetaSplitLineage] = fmt.Sprintf("%s_part_%d_of_%d", groupID, partNum+1, len(parts))
			out = append(out, ch)
		}
	}

	return out
}

// rowGroups splits a newline-delimited table into groups of up to
// tableMaxDataRows data rows, each prefixed with the header row. It
// returns nil when the text has no usable row structure.
func (c *ScientificDataChunker) rowGroups(table string) []string {
	lines := splitTableRows(table)
	if len(lines) < 3 {
		return nil
	}

	header := lines[0]
	dataRows := lines[1:]

	var groups []string
	for start := 0; start < len(dataRows); start += tableMaxDataRows {
		end := min(start+tableMaxDataRows, len(dataRows))
		group := header + "\n" + strings.Join(dataRows[start:end], "\n")
		groups = append(groups, group)
	}
	return groups
}

// splitTableRows returns the non-empty lines of a table text.
func splitTableRows(table string) []string {
	raw := strings.Split(table, "\n")
	rows := make([]string, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) != "" {
			rows = append(rows, r)
		}
	}
	return rows
}
