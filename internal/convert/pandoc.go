// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/pdiddy/arxiv-epub/internal/container"
	"github.com/pdiddy/arxiv-epub/pkg/types"
)

const (
	defaultPandocPath  = "pandoc"
	defaultPandocImage = "pandoc/core:3.5"
)

// NewLocalPandoc creates a converter that runs the pandoc binary at path
// (looked up on PATH when it has no separator). It fails when the binary
// cannot be found.
func NewLocalPandoc(path, stylesheet string) (*Pandoc, error) {
	if path == "" {
		path = defaultPandocPath
	}
	bin, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("pandoc binary not available: %w", err)
	}
	run := func(ctx context.Context, args []string, _ []string, stdin io.Reader, stdout, stderr io.Writer) error {
		cmd := exec.CommandContext(ctx, bin, args...)
		cmd.Stdin = stdin
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		return cmd.Run()
	}
	return &Pandoc{run: run, stylesheet: stylesheet}, nil
}

// NewContainerPandoc creates a converter that runs pandoc from image through
// the given container runtime. Directories pandoc reads are bind-mounted
// read-only at their host paths. It verifies that the image exists locally
// before returning.
func NewContainerPandoc(rt container.Runtime, image, stylesheet string) (*Pandoc, error) {
	if image == "" {
		image = defaultPandocImage
	}
	if err := rt.ImageExists(image); err != nil {
		return nil, fmt.Errorf("pandoc image not available in %s: %w", rt.Name(), err)
	}
	run := func(ctx context.Context, args []string, dirs []string, stdin io.Reader, stdout, stderr io.Writer) error {
		mounts := make([]container.Mount, len(dirs))
		for i, d := range dirs {
			mounts[i] = container.Mount{Source: d, Target: d, ReadOnly: true}
		}
		return rt.Run(ctx, image, container.RunOptions{
			Mounts: mounts,
			Args:   args,
			Stdin:  stdin,
			Stdout: stdout,
			Stderr: stderr,
		})
	}
	return &Pandoc{run: run, stylesheet: stylesheet}, nil
}

// New builds the converter selected by cfg.
func New(cfg types.ConverterConfig) (Converter, error) {
	stylesheet := cfg.Stylesheet
	if stylesheet == "" {
		stylesheet = DefaultStylesheet
	}
	switch cfg.Backend {
	case "", types.BackendPandoc:
		return NewLocalPandoc(cfg.PandocPath, stylesheet)
	case types.BackendContainer:
		rt, err := container.DetectRuntime()
		if err != nil {
			return nil, err
		}
		return NewContainerPandoc(rt, cfg.Image, stylesheet)
	default:
		return nil, fmt.Errorf("unknown converter backend %q", cfg.Backend)
	}
}

// Unavailable returns a Converter that fails every conversion with cause,
// so a missing pandoc surfaces as a per-paper conversion failure while PDF
// downloads still proceed.
func Unavailable(cause error) Converter {
	return unavailable{cause: cause}
}

type unavailable struct{ cause error }

func (u unavailable) Convert(context.Context, Request) error {
	return fmt.Errorf("%w: %v", types.ErrConversion, u.cause)
}
