// Package transfer downloads single items into a collection's working
// directory without ever leaving a truncated artifact behind.
package transfer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"arcsync/internal/errdefs"
	"arcsync/internal/remote"
)

const partSuffix = ".part"

// Executor downloads items for one collection. It does not retry: a failed
// item is reported to the caller, who decides whether the run continues.
type Executor struct {
	source     remote.Source
	collection string
	workdir    string
	timeout    time.Duration
}

// NewExecutor creates an executor writing into workdir. A zero timeout
// leaves each transfer bounded only by the caller's context.
func NewExecutor(source remote.Source, collection, workdir string, timeout time.Duration) *Executor {
	return &Executor{
		source:     source,
		collection: collection,
		workdir:    workdir,
		timeout:    timeout,
	}
}

// Transfer downloads one item to its artifact path, returning the byte
// count. The stream lands in a .part file that is renamed into place only
// once fully written and synced; on any failure the partial file is removed
// so a later run starts from a clean slate.
func (e *Executor) Transfer(ctx context.Context, item remote.Item) (int64, error) {
	name := e.source.ArtifactName(item)
	if !filepath.IsLocal(name) {
		return 0, errdefs.Newf(errdefs.KindTransfer, "transfer",
			"unsafe artifact name %q", name).WithCollection(e.collection).WithItem(item.Identifier)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	dest := filepath.Join(e.workdir, name)
	if dir := filepath.Dir(dest); dir != filepath.Clean(e.workdir) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, errdefs.New(errdefs.KindTransfer, "transfer", err).
				WithCollection(e.collection).WithItem(item.Identifier)
		}
	}

	written, err := e.download(ctx, item, dest)
	if err != nil {
		return 0, errdefs.New(errdefs.KindTransfer, "transfer", err).
			WithCollection(e.collection).WithItem(item.Identifier)
	}
	return written, nil
}

func (e *Executor) download(ctx context.Context, item remote.Item, dest string) (int64, error) {
	rc, err := e.source.Open(ctx, e.collection, item)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	part := dest + partSuffix
	f, err := os.Create(part)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(f, rc)
	if err != nil {
		f.Close()
		os.Remove(part)
		return 0, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(part)
		return 0, err
	}
	if err := f.Close(); err != nil {
		os.Remove(part)
		return 0, err
	}

	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return 0, err
	}
	return written, nil
}
