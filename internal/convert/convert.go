// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns retrieved PDFs and JATS XML into Markdown through an
// ordered chain of backends sharing one retry budget.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/paperfetch/pkg/types"
)

// PDFTrimmer cuts trailing back matter from a PDF before conversion.
// *trim.Trimmer implements it.
type PDFTrimmer interface {
	Trim(ctx context.Context, path string) (string, types.TrimDecision, error)
}

// existingBackend marks an outcome satisfied by Markdown already on disk.
const existingBackend = "existing"

// BatchResult holds the outcome of a file conversion run.
type BatchResult struct {
	Converted int
	Skipped   int
	Failed    int
}

// Total returns the number of files processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped + r.Failed
}

// HasFailures reports whether any file failed conversion.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// KindOf sniffs the content kind of the file at path from its leading
// bytes, falling back to the extension.
func KindOf(path string) (types.ContentKind, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	head = bytes.TrimLeft(bytes.TrimPrefix(head[:n], []byte("\xef\xbb\xbf")), " \t\r\n")
	switch {
	case bytes.HasPrefix(head, []byte("%PDF")):
		return types.KindPDF, nil
	case bytes.HasPrefix(head, []byte("<")):
		return types.KindXML, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return types.KindPDF, nil
	case ".xml", ".nxml":
		return types.KindXML, nil
	}
	return "", fmt.Errorf("%s: unrecognized content", path)
}

// Document trims a PDF (when trimmer is non-nil) and runs the chain on it.
// The trimmed copy is removed afterwards.
func Document(ctx context.Context, eng *Engine, trimmer PDFTrimmer, in Input) types.ConversionOutcome {
	if in.Kind == types.KindPDF && trimmer != nil {
		trimmed, _, err := trimmer.Trim(ctx, in.Path)
		if err == nil && trimmed != in.Path {
			defer os.Remove(trimmed)
			in.Path = trimmed
		}
	}
	return eng.Convert(ctx, in)
}

// WriteMarkdown writes text to path through a temporary file in the same
// directory so readers never see a partial file.
func WriteMarkdown(path, text string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".md-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// ConvertFile converts one local file into outDir/<base>.md. Existing
// Markdown is left alone.
func ConvertFile(ctx context.Context, eng *Engine, trimmer PDFTrimmer, path, outDir string, w io.Writer) types.ConversionOutcome {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	mdPath := filepath.Join(outDir, base+".md")

	if _, err := os.Stat(mdPath); err == nil {
		fmt.Fprintf(w, "skipped: %s (already exists)\n", base)
		return types.ConversionOutcome{Success: true, Backend: existingBackend}
	}

	kind, err := KindOf(path)
	if err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", base, err)
		return types.ConversionOutcome{Reason: string(types.ReasonInvalidFormat)}
	}

	out := Document(ctx, eng, trimmer, Input{Path: path, Kind: kind, ID: base})
	if !out.Success {
		fmt.Fprintf(w, "failed:  %s (%s)\n", base, out.Reason)
		return out
	}
	if err := WriteMarkdown(mdPath, out.Text); err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", base, err)
		return types.ConversionOutcome{Reason: err.Error(), Attempts: out.Attempts}
	}
	fmt.Fprintf(w, "converted: %s (%s)\n", base, out.Backend)
	return out
}

// ConvertPaths converts each file in turn, printing per-file status to w and
// returning a summary.
func ConvertPaths(ctx context.Context, eng *Engine, trimmer PDFTrimmer, paths []string, outDir string, w io.Writer) BatchResult {
	var result BatchResult
	for _, p := range paths {
		out := ConvertFile(ctx, eng, trimmer, p, outDir, w)
		switch {
		case out.Backend == existingBackend:
			result.Skipped++
		case out.Success:
			result.Converted++
		default:
			result.Failed++
		}
	}
	fmt.Fprintf(w, "\nBatch summary: %d converted, %d skipped, %d failed (total: %d)\n",
		result.Converted, result.Skipped, result.Failed, result.Total())
	return result
}
