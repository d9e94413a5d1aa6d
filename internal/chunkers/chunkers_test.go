package chunkers

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/extract"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/logging"
)

func el(t extract.ElementType, text string) extract.Element {
	return extract.Element{Type: t, Text: text}
}

func paragraph(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&b, "Sea surface temperatures rose measurably during observation period %d. ", i)
	}
	return strings.TrimSpace(b.String())
}

func TestForBucketDispatch(t *testing.T) {
	logger := logging.Discard()
	assert.Equal(t, "research_imrad", ForBucket(bucket.ResearchPapers, logger).Name())
	assert.Equal(t, "policy_structural", ForBucket(bucket.Policy, logger).Name())
	assert.Equal(t, "scientificdata_table", ForBucket(bucket.ScientificData, logger).Name())
	assert.Equal(t, "news_recursive", ForBucket(bucket.News, logger).Name())
}

func TestResearchChunkerSectionsAndReferences(t *testing.T) {
	elements := []extract.Element{
		el(extract.ElementTitle, "Abstract"),
		el(extract.ElementNarrativeText, paragraph(4)),
		el(extract.ElementTitle, "Methods"),
		el(extract.ElementNarrativeText, paragraph(20)),
		el(extract.ElementTitle, "Results"),
		el(extract.ElementNarrativeText, paragraph(12)),
		el(extract.ElementTitle, "References"),
		el(extract.ElementNarrativeText, "[1] Smith, J. (2020). Ocean warming.\n[2] Jones, K. (2021). Ice loss."),
	}

	c := NewResearchChunker(logging.Discard())
	chunks, err := c.Chunk(context.Background(), elements, "paper.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	sections := map[string]bool{}
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, bucket.ResearchPapers, ch.Bucket)
		assert.NotEmpty(t, ch.ID)
		assert.Positive(t, ch.TokenCount)

		section, ok := ch.Metadata[MetaSectionType].(string)
		require.True(t, ok)
		sections[section] = true
		assert.NotEqual(t, SectionReferences, section)
		assert.NotContains(t, ch.Text, "Smith, J. (2020)")
	}
	assert.True(t, sections[SectionAbstract])
	assert.True(t, sections[SectionMethodology])
	assert.True(t, sections[SectionResults])
}

func TestResearchChunkerSectionSizeBounds(t *testing.T) {
	elements := []extract.Element{
		el(extract.ElementTitle, "Methodology"),
		el(extract.ElementNarrativeText, paragraph(60)),
	}

	c := NewResearchChunker(logging.Discard())
	chunks, err := c.Chunk(context.Background(), elements, "paper.pdf")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Text), researchMethodologySize+researchMethodologySize/10)
	}
}

func TestResearchChunkerEmptyInput(t *testing.T) {
	c := NewResearchChunker(logging.Discard())
	chunks, err := c.Chunk(context.Background(), nil, "empty.pdf")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestPolicyChunkerLegalReferences(t *testing.T) {
	elements := []extract.Element{
		el(extract.ElementTitle, "Chapter I"),
		el(extract.ElementNarrativeText,
			"Pursuant to Article 6 and Section 12(3), member states shall report emissions annually. "+
				"This obligation supplements Regulation (EU) 2021/1119 and applies from the dates set out in Chapter IV."),
	}

	c := NewPolicyChunker(logging.Discard())
	chunks, err := c.Chunk(context.Background(), elements, "climate-law.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	refs, ok := chunks[0].Metadata[MetaLegalReferences].([]string)
	require.True(t, ok)
	assert.Contains(t, refs, "article 6")
	assert.Contains(t, refs, "section 12(3)")
	assert.Contains(t, refs, "chapter iv")
}

func TestPolicyChunkerSizeBounds(t *testing.T) {
	elements := []extract.Element{
		el(extract.ElementTitle, "Definitions"),
		el(extract.ElementNarrativeText, paragraph(50)),
		el(extract.ElementTitle, "Enforcement"),
		el(extract.ElementNarrativeText, paragraph(2)),
		el(extract.ElementNarrativeText, paragraph(2)),
	}

	c := NewPolicyChunker(logging.Discard())
	chunks, err := c.Chunk(context.Background(), elements, "policy.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Text), policyMaxChunkChars+policyMaxChunkChars/10,
			"chunk exceeds max bound")
	}
}

func TestPolicyChunkerSectionClassification(t *testing.T) {
	c := NewPolicyChunker(logging.Discard())
	assert.Equal(t, SectionDefinitions, c.labelFor("Article 2: Definitions"))
	assert.Equal(t, SectionEnforcement, c.labelFor("Penalties and Compliance"))
	assert.Equal(t, SectionAmendments, c.labelFor("Entry into Force"))
	assert.Equal(t, SectionAnnexes, c.labelFor("Annex II"))
	assert.Equal(t, SectionMainProvisions, c.labelFor("Article 7"))
}

func TestExtractLegalReferencesDeduplicates(t *testing.T) {
	refs := ExtractLegalReferences("Article 3 applies. As stated in article 3, and also Article 4.")
	assert.Equal(t, []string{"article 3", "article 4"}, refs)
}

func buildTable(dataRows int) string {
	var b strings.Builder
	b.WriteString("Year | Region | Mean Temp Anomaly (C) | CO2 (ppm) | Sea Level (mm)\n")
	for i := 0; i < dataRows; i++ {
		fmt.Fprintf(&b, "%d | North Atlantic basin sector %d | %.2f | %.1f | %.1f\n",
			1990+i, i, 0.5+float64(i)*0.01, 350+float64(i), 10+float64(i)*2.5)
	}
	return b.String()
}

func TestScientificDataSmallTableStaysWhole(t *testing.T) {
	table := buildTable(4)
	require.LessOrEqual(t, len(table), tableSplitThreshold)

	c := NewScientificDataChunker(logging.Discard())
	chunks, err := c.Chunk(context.Background(), []extract.Element{el(extract.ElementTable, table)}, "data.csv")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "table_1", chunks[0].Metadata[MetaTableGroup])
}

func TestScientificDataLargeTableRowGroups(t *testing.T) {
	table := buildTable(18)
	require.Greater(t, len(table), tableSplitThreshold)

	c := NewScientificDataChunker(logging.Discard())
	chunks, err := c.Chunk(context.Background(), []extract.Element{el(extract.ElementTable, table)}, "data.csv")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	header := "Year | Region | Mean Temp Anomaly (C) | CO2 (ppm) | Sea Level (mm)"
	for _, ch := range chunks {
		assert.True(t, strings.HasPrefix(ch.Text, header), "row group must replicate header")
		rows := strings.Count(ch.Text, "\n")
		assert.LessOrEqual(t, rows, tableMaxDataRows, "at most five data rows per group")
		assert.LessOrEqual(t, len(ch.Text), tableHardCapChars)
	}
}

func TestScientificDataEmergencySplitLineage(t *testing.T) {
	// One enormous data row forces a group past the hard cap.
	table := "ID | Payload\n" +
		"row1 | " + strings.Repeat("measurement ", 200) + "\n" +
		"row2 | short\n" +
		"row3 | short"

	c := NewScientificDataChunker(logging.Discard())
	chunks, err := c.Chunk(context.Background(), []extract.Element{el(extract.ElementTable, table)}, "data.csv")
	require.NoError(t, err)

	var lineage int
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Text), tableHardCapChars)
		if _, ok := ch.Metadata[MetaSplitLineage]; ok {
			lineage++
		}
	}
	assert.Greater(t, lineage, 1, "emergency split parts carry lineage")
}

func TestNewsChunkerOverlap(t *testing.T) {
	elements := []extract.Element{
		el(extract.ElementNarrativeText, paragraph(40)),
	}

	c := NewNewsChunker(logging.Discard())
	chunks, err := c.Chunk(context.Background(), elements, "article#row3")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, bucket.News, ch.Bucket)
		assert.LessOrEqual(t, len(ch.Text), newsChunkSize+newsChunkSize/10)
	}

	// Adjacent chunks share overlap text.
	tail := chunks[0].Text[len(chunks[0].Text)-30:]
	assert.Contains(t, chunks[1].Text, strings.TrimSpace(tail)[:10])
}

func TestRecursiveSplitterShortTextSingleChunk(t *testing.T) {
	s := NewRecursiveSplitter(512, 0.15)
	out := s.Split("A short paragraph.")
	require.Len(t, out, 1)
	assert.Equal(t, "A short paragraph.", out[0])
}

func TestRecursiveSplitterEmpty(t *testing.T) {
	s := NewRecursiveSplitter(512, 0.15)
	assert.Empty(t, s.Split("   "))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("a", 100)))
}
