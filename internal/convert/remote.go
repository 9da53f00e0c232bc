// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/pdiddy/paperfetch/internal/mineru"
	"github.com/pdiddy/paperfetch/pkg/types"
)

// RemoteClient is the part of the remote parsing client the backend uses.
type RemoteClient interface {
	ConvertFile(ctx context.Context, token string, f mineru.File) (string, error)
	Revoked(token string) bool
}

// Remote sends PDFs to the remote parsing service one at a time, using the
// credential assigned to the job.
type Remote struct {
	client RemoteClient
}

// NewRemote wraps client as a backend.
func NewRemote(client RemoteClient) *Remote { return &Remote{client: client} }

func (r *Remote) Name() string { return BackendRemote }

func (r *Remote) Accepts(kind types.ContentKind) bool { return kind == types.KindPDF }

// Applicable is false when the job has no credential or the credential was
// rejected earlier in the run.
func (r *Remote) Applicable(in Input) bool {
	return in.Token != "" && !r.client.Revoked(in.Token)
}

func (r *Remote) Convert(ctx context.Context, in Input) Result {
	id := in.ID
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(in.Path), filepath.Ext(in.Path))
	}
	md, err := r.client.ConvertFile(ctx, in.Token, mineru.File{Path: in.Path, DataID: id})
	if err != nil {
		return Fail(RemoteReason(err), err)
	}
	return Success(md)
}

// RemoteReason classifies a remote parsing error.
func RemoteReason(err error) types.FailureReason {
	switch {
	case errors.Is(err, mineru.ErrUnauthorized):
		return types.ReasonAuth
	case errors.Is(err, mineru.ErrDeadline), errors.Is(err, context.DeadlineExceeded):
		return types.ReasonTimeout
	case errors.Is(err, mineru.ErrBadArchive), errors.Is(err, mineru.ErrNoMarkdown):
		return types.ReasonInvalidFormat
	default:
		return types.ReasonBackendError
	}
}
