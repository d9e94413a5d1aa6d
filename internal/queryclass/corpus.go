package queryclass

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed corpus.yaml
var corpusYAML []byte

// corpusGroup is one utterance family with its canned reply.
type corpusGroup struct {
	Reply      string   `yaml:"reply"`
	Utterances []string `yaml:"utterances"`
}

// corpus is the typed, versioned utterance data file loaded at startup.
type corpus struct {
	Version         int         `yaml:"version"`
	BotIdentity     corpusGroup `yaml:"bot_identity"`
	Conversational  corpusGroup `yaml:"conversational"`
	ClimateKeywords []string    `yaml:"climate_keywords"`
}

// loadCorpus parses the embedded corpus and pre-normalizes every
// utterance for the exact-match layer.
func loadCorpus() (*corpus, error) {
	var c corpus
	if err := yaml.Unmarshal(corpusYAML, &c); err != nil {
		return nil, fmt.Errorf("failed to parse utterance corpus; %w", err)
	}
	if len(c.BotIdentity.Utterances) == 0 || len(c.Conversational.Utterances) == 0 {
		return nil, fmt.Errorf("utterance corpus is incomplete (version %d)", c.Version)
	}
	for i, u := range c.BotIdentity.Utterances {
		c.BotIdentity.Utterances[i] = normalize(u)
	}
	for i, u := range c.Conversational.Utterances {
		c.Conversational.Utterances[i] = normalize(u)
	}
	for i, k := range c.ClimateKeywords {
		c.ClimateKeywords[i] = strings.ToLower(k)
	}
	return &c, nil
}

// normalize lowercases, strips punctuation, and collapses whitespace so
// "Who made you?!" matches "who made you".
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}
