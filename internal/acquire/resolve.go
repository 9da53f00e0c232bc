// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/pdiddy/paperfetch/pkg/types"
)

// IdentifierType classifies an input identifier.
type IdentifierType int

const (
	TypeUnknown IdentifierType = iota
	TypeDOI
	TypePMID
	TypePMCID
	TypeURL
)

func (t IdentifierType) String() string {
	switch t {
	case TypeDOI:
		return "doi"
	case TypePMID:
		return "pmid"
	case TypePMCID:
		return "pmcid"
	case TypeURL:
		return "url"
	default:
		return "unknown"
	}
}

// doiPattern matches DOIs: "10.1145/1234567.1234568". Registrant codes
// may be any length and carry dotted sub-registrants ("10.1000.10/x").
var doiPattern = regexp.MustCompile(`^10\.\d+(?:\.\d+)*/\S+$`)

// pmidPattern matches bare PubMed IDs.
var pmidPattern = regexp.MustCompile(`^\d{1,9}$`)

// pmcidPattern matches PMC accession IDs: "PMC7654321".
var pmcidPattern = regexp.MustCompile(`(?i)^PMC(\d+)$`)

var doiPrefixes = []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"}

// Classify determines the identifier type and returns the normalized form.
// DOI resolver prefixes are stripped and PMCIDs are upper-cased.
func Classify(identifier string) (IdentifierType, string) {
	identifier = strings.TrimSpace(identifier)

	doi := identifier
	for _, p := range doiPrefixes {
		if len(doi) >= len(p) && strings.EqualFold(doi[:len(p)], p) {
			doi = strings.TrimSpace(doi[len(p):])
			break
		}
	}
	if doiPattern.MatchString(doi) {
		return TypeDOI, doi
	}

	if m := pmcidPattern.FindStringSubmatch(identifier); m != nil {
		return TypePMCID, "PMC" + m[1]
	}

	if pmidPattern.MatchString(identifier) {
		return TypePMID, identifier
	}

	if u, err := url.Parse(identifier); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return TypeURL, identifier
	}

	return TypeUnknown, identifier
}

// Identify classifies identifier and returns it in the matching field.
func Identify(identifier string) (types.Identifiers, error) {
	var ids types.Identifiers
	t, v := Classify(identifier)
	switch t {
	case TypeDOI:
		ids.DOI = v
	case TypePMID:
		ids.PMID = v
	case TypePMCID:
		ids.PMCID = v
	case TypeURL:
		ids.URL = v
	default:
		return ids, fmt.Errorf("unrecognized identifier format: %q", identifier)
	}
	return ids, nil
}

// mirrorKey returns the identifier mirrors are queried with: DOI, then
// PMID, then URL.
func mirrorKey(ids types.Identifiers) string {
	for _, v := range []string{ids.DOI, ids.PMID, ids.URL} {
		if v != "" {
			return v
		}
	}
	return ""
}
