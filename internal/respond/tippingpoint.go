package respond

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// NoTippingPoint is the canonical reply when the lookup yields nothing.
const NoTippingPoint = "No specific social tipping point available for this query."

// fillerPrefixes are discourse openers stripped while condensing the
// response into a lookup signature.
var fillerPrefixes = []string{
	"in summary", "in conclusion", "overall", "to summarize", "in short",
	"it is important to note that", "it should be noted that", "notably",
	"however", "moreover", "furthermore", "additionally", "firstly", "finally",
}

// TippingPointClient resolves a social tipping point for a generated
// response. The lookup is driven by the response text, never by the
// user's query.
type TippingPointClient struct {
	url        string
	maxChars   int
	httpClient *http.Client
	logger     *slog.Logger
}

// TippingPointOption configures the client.
type TippingPointOption func(*TippingPointClient)

// WithTippingPointHTTPClient sets the HTTP client to use.
func WithTippingPointHTTPClient(client *http.Client) TippingPointOption {
	return func(c *TippingPointClient) {
		c.httpClient = client
	}
}

// WithTippingPointLogger sets the logger.
func WithTippingPointLogger(logger *slog.Logger) TippingPointOption {
	return func(c *TippingPointClient) {
		c.logger = logger
	}
}

// NewTippingPointClient creates a lookup client. maxChars bounds the
// signature length; zero uses 500.
func NewTippingPointClient(url string, maxChars int, timeout time.Duration, opts ...TippingPointOption) *TippingPointClient {
	if maxChars <= 0 {
		maxChars = 500
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &TippingPointClient{
		url:        url,
		maxChars:   maxChars,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tippingPointRequest struct {
	Text string `json:"text"`
}

type tippingPointResponse struct {
	TippingPoint string `json:"tipping_point"`
}

// Lookup condenses the response content into a signature and resolves
// it. Every failure path degrades to the canonical no-result string.
func (c *TippingPointClient) Lookup(ctx context.Context, responseContent string) string {
	signature := ResponseSignature(responseContent, c.maxChars)
	if signature == "" {
		return NoTippingPoint
	}

	body, err := json.Marshal(tippingPointRequest{Text: signature})
	if err != nil {
		return NoTippingPoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return NoTippingPoint
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("tipping point lookup failed", "error", err)
		return NoTippingPoint
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		c.logger.Warn("tipping point lookup failed",
			"status", resp.StatusCode,
			"error", err)
		return NoTippingPoint
	}

	var tpr tippingPointResponse
	if err := json.Unmarshal(respBody, &tpr); err != nil {
		return NoTippingPoint
	}
	if strings.TrimSpace(tpr.TippingPoint) == "" {
		return NoTippingPoint
	}
	return strings.TrimSpace(tpr.TippingPoint)
}

// ResponseSignature condenses a response body into a filler-stripped
// extract drawn from its middle sentences, capped at maxChars. The
// middle carries the substance; openings restate the question and
// endings restate the opening.
func ResponseSignature(content string, maxChars int) string {
	sentences := splitSentences(content)
	if len(sentences) == 0 {
		return ""
	}

	// Drop the leading and trailing sentence when there is enough
	// material to spare them.
	if len(sentences) > 4 {
		sentences = sentences[1 : len(sentences)-1]
	}

	var b strings.Builder
	for _, s := range sentences {
		s = stripFiller(s)
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			if b.Len()+1+len(s) > maxChars {
				break
			}
			b.WriteByte(' ')
		} else if len(s) > maxChars {
			return strings.TrimSpace(s[:maxChars])
		}
		b.WriteString(s)
	}
	return b.String()
}

// stripFiller removes a leading discourse opener from a sentence.
func stripFiller(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, f := range fillerPrefixes {
		if strings.HasPrefix(lower, f) {
			rest := strings.TrimLeft(s[len(f):], " ,:")
			if rest != "" {
				return rest
			}
		}
	}
	return s
}

// splitSentences breaks text on sentence terminators followed by a
// space, keeping the terminator.
func splitSentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch != '.' && ch != '!' && ch != '?' {
			continue
		}
		if i+1 < len(text) && text[i+1] != ' ' {
			continue
		}
		if s := strings.TrimSpace(text[start : i+1]); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}
