// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	_ "embed"
	"encoding/json"

	"github.com/pdiddy/paperfetch/pkg/types"
)

// Annotation fields added to every successful paper for downstream
// reviewers. Existing object values are left untouched.
const (
	fieldMarkdown   = "md_file"
	fieldRelevance  = "relevance_score"
	fieldContext    = "extraction_context"
	fieldReadReport = "Reading_Report"
)

//go:embed reading_report.json
var readingReport []byte

var relevanceScore = json.RawMessage(`{
	"theme_relevance": {"score": 0.0, "evaluation": ""},
	"methods_relevance": {"score": 0.0, "evaluation": ""},
	"results_relevance": {"score": 0.0, "evaluation": ""},
	"argumentative_value": {"score": 0.0, "evaluation": ""}
}`)

// enrich returns a copy of paper with md_file set and the placeholder
// annotations added where absent.
func enrich(paper *object, mdFile string, ec types.ExtractionContext) (*object, error) {
	p := paper.clone()
	if err := p.set(fieldMarkdown, mdFile); err != nil {
		return nil, err
	}
	if !p.isObject(fieldRelevance) {
		if err := p.set(fieldRelevance, relevanceScore); err != nil {
			return nil, err
		}
	}
	if !p.isObject(fieldContext) {
		if err := p.set(fieldContext, ec); err != nil {
			return nil, err
		}
	}
	if !p.isObject(fieldReadReport) {
		if err := p.set(fieldReadReport, json.RawMessage(readingReport)); err != nil {
			return nil, err
		}
	}
	return p, nil
}
