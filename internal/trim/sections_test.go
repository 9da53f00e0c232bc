// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package trim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSections(t *testing.T) {
	assert.Equal(t, []string{"results", "methods"}, ParseSections([]string{" Results, methods", "results", ""}))
	assert.Equal(t, DefaultSections, ParseSections([]string{"default"}))
	assert.Nil(t, ParseSections(nil))
}

const paperMarkdown = `# Deep Learning for Cells

Jane Doe, John Roe

## Abstract

We study cells.

## 1. Introduction

Cells matter.

### 1.1 Scope

Narrow.

## Highlights of Figures

skip me

## 2 Materials and Methods

We did.

## Results

It worked.

## References

1. Smith

## Discussion after refs

no
`

func TestKeepSections(t *testing.T) {
	t.Run("named sections with title", func(t *testing.T) {
		got := KeepSections(paperMarkdown, ParseSections([]string{"title,abstract", "introduction", "results"}), nil)
		assert.Equal(t, "# Deep Learning for Cells\n\n## Abstract\n\nWe study cells.\n\n## 1. Introduction\n\nCells matter.\n\n### 1.1 Scope\n\nNarrow.\n\n## Results\n\nIt worked.\n", got)
	})

	t.Run("default keeps authors and methods", func(t *testing.T) {
		got := KeepSections(paperMarkdown, DefaultSections, nil)
		assert.Contains(t, got, "# Deep Learning for Cells\n\nJane Doe, John Roe\n\n## Abstract")
		assert.Contains(t, got, "## 2 Materials and Methods\n\nWe did.")
		assert.NotContains(t, got, "Highlights")
		assert.NotContains(t, got, "References")
		assert.NotContains(t, got, "after refs")
	})

	t.Run("flat level-one headings", func(t *testing.T) {
		md := "# Title\n\n# Abstract\n\nA.\n\n# Results and Discussion\n\nR.\n\n# Acknowledgements\n\nthanks\n"
		assert.Equal(t, "# Abstract\n\nA.\n", KeepSections(md, []string{"abstract"}, nil))
		assert.Equal(t, "# Results and Discussion\n\nR.\n", KeepSections(md, []string{"discussion"}, nil))
	})

	t.Run("custom stop keywords", func(t *testing.T) {
		md := "## Results\n\nR.\n\n## Funding\n\nF.\n\n## Discussion\n\nD.\n"
		assert.Equal(t, "## Results\n\nR.\n", KeepSections(md, []string{"results", "discussion"}, NewMatcher([]string{"funding"})))
	})

	t.Run("no named section leaves input", func(t *testing.T) {
		md := "# T\n\n## Overview\n\ntext\n"
		assert.Equal(t, md, KeepSections(md, []string{"results"}, nil))
		assert.Equal(t, paperMarkdown, KeepSections(paperMarkdown, []string{"title", "authors"}, nil))
		assert.Equal(t, paperMarkdown, KeepSections(paperMarkdown, nil, nil))
	})

	t.Run("headings in code are ignored", func(t *testing.T) {
		md := "## Methods\n\n```\n## Results\n```\n\n## Results\n\nR.\n"
		assert.Equal(t, "## Results\n\nR.\n", KeepSections(md, []string{"results"}, nil))
	})
}

var ocrLines = []string{
	"Journal of Cells 2020",
	"Deep learning segmentation of cells in tissue",
	"Jane Doe, John Roe and Ann Poe",
	"",
	"Abstract",
	"We segment cells.",
	"It works well.",
	"1. Introduction",
	"Cells are small.",
	"The results show nothing here.",
	"Methods",
	"We trained a model.",
	"Results and Discussion",
	"Accuracy was high.",
	"References",
	"1. Smith J.",
}

const assembledPaper = "# Deep learning segmentation of cells in tissue\n\n" +
	"**Authors**: Jane Doe, John Roe and Ann Poe\n\n" +
	"## Abstract\n\nWe segment cells. It works well.\n\n" +
	"## Introduction\n\nCells are small.\nThe results show nothing here.\n\n" +
	"## Methods\n\nWe trained a model.\n\n" +
	"## Results\n\nAccuracy was high.\n"

func TestAssembleSections(t *testing.T) {
	got := AssembleSections(ocrLines, DefaultSections, nil)
	assert.Equal(t, assembledPaper, got)

	t.Run("already selected output is stable", func(t *testing.T) {
		assert.Equal(t, got, KeepSections(got, DefaultSections, nil))
	})

	t.Run("subset", func(t *testing.T) {
		assert.Equal(t, "## Methods\n\nWe trained a model.\n", AssembleSections(ocrLines, []string{"methods"}, nil))
	})

	t.Run("inline abstract", func(t *testing.T) {
		lines := []string{"A Long Enough Title Line", "Abstract: We did X.", "More abstract.", "Results", "R1"}
		assert.Equal(t, "## Abstract\n\nWe did X. More abstract.\n", AssembleSections(lines, []string{"abstract"}, nil))
	})

	t.Run("nothing found", func(t *testing.T) {
		assert.Empty(t, AssembleSections([]string{"just text", "more text"}, DefaultSections, nil))
		assert.Empty(t, AssembleSections(ocrLines, []string{"title"}, nil))
	})
}
