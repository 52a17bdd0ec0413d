// Package nlp wraps tokenization, stop-word removal, lemmatization and named
// entity extraction for English text.
package nlp

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
	"github.com/bbalet/stopwords"
	"github.com/jdkato/prose/v2"
)

// Entity is a named entity found in text.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Processor runs the text operations. The lemmatizer dictionary is loaded on
// first use. It is safe for concurrent use.
type Processor struct {
	once       sync.Once
	lemmatizer *golem.Lemmatizer
	loadErr    error
}

// New creates a processor.
func New() *Processor {
	return &Processor{}
}

// Tokenize splits text into word and punctuation tokens.
func (p *Processor) Tokenize(text string) ([]string, error) {
	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
		prose.WithTagging(false),
		prose.WithExtraction(false))
	if err != nil {
		return nil, fmt.Errorf("Tokenize: %w", err)
	}

	tokens := doc.Tokens()
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, tok.Text)
	}
	return out, nil
}

// RemoveStopwords drops English stop words, compared case-insensitively, and
// joins the remaining tokens with single spaces.
func (p *Processor) RemoveStopwords(text string) (string, error) {
	tokens, err := p.Tokenize(text)
	if err != nil {
		return "", err
	}

	kept := tokens[:0]
	for _, tok := range tokens {
		if !isStopword(tok) {
			kept = append(kept, tok)
		}
	}
	return strings.Join(kept, " "), nil
}

// Lemmatize replaces each token with its dictionary lemma. Tokens the
// dictionary does not know are kept as written.
func (p *Processor) Lemmatize(text string) (string, error) {
	l, err := p.lemma()
	if err != nil {
		return "", err
	}
	tokens, err := p.Tokenize(text)
	if err != nil {
		return "", err
	}

	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		lower := strings.ToLower(tok)
		if lemma := l.Lemma(lower); lemma != "" && lemma != lower {
			out = append(out, lemma)
			continue
		}
		out = append(out, tok)
	}
	return strings.Join(out, " "), nil
}

// ExtractEntities returns the named entities in text, in order of
// appearance.
func (p *Processor) ExtractEntities(text string) ([]Entity, error) {
	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil, fmt.Errorf("ExtractEntities: %w", err)
	}

	ents := doc.Entities()
	out := make([]Entity, 0, len(ents))
	for _, e := range ents {
		out = append(out, Entity{Text: e.Text, Label: e.Label})
	}
	return out, nil
}

func (p *Processor) lemma() (*golem.Lemmatizer, error) {
	p.once.Do(func() {
		p.lemmatizer, p.loadErr = golem.New(en.New())
		if p.loadErr != nil {
			p.loadErr = fmt.Errorf("Lemmatize: loading dictionary: %w", p.loadErr)
		}
	})
	return p.lemmatizer, p.loadErr
}

// isStopword checks one token against the English list. Tokens without
// letters (numbers, punctuation) are never stop words.
func isStopword(tok string) bool {
	if !strings.ContainsFunc(tok, unicode.IsLetter) {
		return false
	}
	return strings.TrimSpace(stopwords.CleanString(strings.ToLower(tok), "en", false)) == ""
}
