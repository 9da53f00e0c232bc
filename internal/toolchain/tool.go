// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package toolchain

import (
	"context"
	"fmt"
	"io"
)

// Local binaries used by the converters.
const (
	BinPandoc   = "pandoc"
	BinPdftoppm = "pdftoppm"
)

// Tool is a local executable.
type Tool struct {
	bin  string
	exec executor
}

// NewTool returns a Tool for the named binary.
func NewTool(bin string) *Tool {
	return &Tool{bin: bin, exec: defaultExec}
}

// Name returns the binary name.
func (t *Tool) Name() string { return t.bin }

// Available reports whether the binary is on PATH.
func (t *Tool) Available() bool {
	_, err := t.exec.LookPath(t.bin)
	return err == nil
}

// Run executes the tool with args. stdin and stdout may be nil.
func (t *Tool) Run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if err := t.exec.RunPiped(ctx, t.bin, args, stdin, stdout); err != nil {
		return fmt.Errorf("running %s: %w", t.bin, err)
	}
	return nil
}

// Toolset is the result of probing the host once at startup. Absent tools
// are nil.
type Toolset struct {
	Runtime  Runtime
	Pandoc   *Tool
	Pdftoppm *Tool
}

// Detect probes the host for a container runtime and the local tools.
func Detect(ctx context.Context) Toolset {
	return detect(ctx, defaultExec)
}

func detect(ctx context.Context, exec executor) Toolset {
	var ts Toolset
	if rt, err := detectRuntime(ctx, exec); err == nil {
		ts.Runtime = rt
	}
	if t := (&Tool{bin: BinPandoc, exec: exec}); t.Available() {
		ts.Pandoc = t
	}
	if t := (&Tool{bin: BinPdftoppm, exec: exec}); t.Available() {
		ts.Pdftoppm = t
	}
	return ts
}
