// Package bucket defines the closed set of document corpora the system
// ingests and queries. Every chunking, summarization, and storage policy
// is routed by bucket.
package bucket

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Bucket identifies one of the four logical corpora.
type Bucket string

const (
	ResearchPapers Bucket = "researchpapers"
	Policy         Bucket = "policy"
	ScientificData Bucket = "scientificdata"
	News           Bucket = "news"
)

// All returns every bucket in routing order.
func All() []Bucket {
	return []Bucket{ResearchPapers, Policy, ScientificData, News}
}

// Parse converts a string label into a Bucket.
func Parse(s string) (Bucket, error) {
	switch Bucket(strings.ToLower(strings.TrimSpace(s))) {
	case ResearchPapers:
		return ResearchPapers, nil
	case Policy:
		return Policy, nil
	case ScientificData:
		return ScientificData, nil
	case News:
		return News, nil
	default:
		return "", fmt.Errorf("unknown bucket %q", s)
	}
}

// String returns the bucket label.
func (b Bucket) String() string {
	return string(b)
}

// Valid reports whether b is one of the four known buckets.
func (b Bucket) Valid() bool {
	switch b {
	case ResearchPapers, Policy, ScientificData, News:
		return true
	}
	return false
}

// UsesURL reports whether documents in this bucket are identified by a
// canonical URL rather than a filename. Only news articles carry URLs.
func (b Bucket) UsesURL() bool {
	return b == News
}

// DocIdentField returns the schema field that identifies a document in
// this bucket's vector collections.
func (b Bucket) DocIdentField() string {
	if b.UsesURL() {
		return "source_url"
	}
	return "doc_name"
}

// SupportsGraph reports whether graph extraction runs for this bucket.
// Scientific data files are tabular and produce no useful graph.
func (b Bucket) SupportsGraph() bool {
	return b != ScientificData
}

// SupportsSTP reports whether the social-tipping-point pipeline runs for
// this bucket.
func (b Bucket) SupportsSTP() bool {
	return b != ScientificData
}

// recognizedExtensions is the set of document extensions the ingestion
// boundary accepts, lowercased with leading dot.
var recognizedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".doc":  true,
	".xlsx": true,
	".xls":  true,
	".csv":  true,
	".txt":  true,
}

// RecognizedExtension reports whether the filename carries a processable
// document extension.
func RecognizedExtension(filename string) bool {
	return recognizedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// IsSpreadsheet reports whether the filename is an Excel workbook. News
// spreadsheets bypass the extractor and expand into per-row articles.
func IsSpreadsheet(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".xlsx" || ext == ".xls"
}
