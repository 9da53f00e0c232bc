// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperfetch/pkg/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		input    string
		wantType IdentifierType
		wantNorm string
	}{
		{"10.1145/1234567.1234568", TypeDOI, "10.1145/1234567.1234568"},
		{"  https://doi.org/10.1038/s41586-020-2649-2 ", TypeDOI, "10.1038/s41586-020-2649-2"},
		{"doi:10.1016/j.cell.2020.01.001", TypeDOI, "10.1016/j.cell.2020.01.001"},
		{"HTTP://DX.DOI.ORG/10.1/x", TypeDOI, "10.1/x"},
		{"10.1/example", TypeDOI, "10.1/example"},
		{"10.123/abc.def", TypeDOI, "10.123/abc.def"},
		{"10.1000.10/xyz", TypeDOI, "10.1000.10/xyz"},
		{"10./x", TypeUnknown, "10./x"},
		{"10.1/", TypeUnknown, "10.1/"},
		{"31452104", TypePMID, "31452104"},
		{"pmc6993921", TypePMCID, "PMC6993921"},
		{"https://www.biorxiv.org/content/10.1101/2020.01.01.123456v1.full.pdf", TypeURL, "https://www.biorxiv.org/content/10.1101/2020.01.01.123456v1.full.pdf"},
		{"ftp://example.com/a.pdf", TypeUnknown, "ftp://example.com/a.pdf"},
		{"not-an-id", TypeUnknown, "not-an-id"},
		{"1234567890", TypeUnknown, "1234567890"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			gotType, gotNorm := Classify(tt.input)
			assert.Equal(t, tt.wantType, gotType)
			assert.Equal(t, tt.wantNorm, gotNorm)
		})
	}
}

func TestIdentify(t *testing.T) {
	ids, err := Identify("PMC123")
	require.NoError(t, err)
	assert.Equal(t, types.Identifiers{PMCID: "PMC123"}, ids)

	ids, err = Identify("doi:10.5/abc")
	require.NoError(t, err)
	assert.Equal(t, types.Identifiers{DOI: "10.5/abc"}, ids)

	_, err = Identify("???")
	assert.Error(t, err)
}

func TestIdentifierTypeString(t *testing.T) {
	assert.Equal(t, "doi", TypeDOI.String())
	assert.Equal(t, "pmid", TypePMID.String())
	assert.Equal(t, "pmcid", TypePMCID.String())
	assert.Equal(t, "url", TypeURL.String())
	assert.Equal(t, "unknown", TypeUnknown.String())
}

func TestMirrorKey(t *testing.T) {
	assert.Equal(t, "10.1/x", mirrorKey(types.Identifiers{DOI: "10.1/x", PMID: "1"}))
	assert.Equal(t, "1", mirrorKey(types.Identifiers{PMID: "1", URL: "https://a"}))
	assert.Equal(t, "", mirrorKey(types.Identifiers{PMCID: "PMC1"}))
}
