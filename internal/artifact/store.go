package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"shortvideo/internal/services"
)

// ErrNotFound reports that neither the primary nor the legacy key exists.
var ErrNotFound = fmt.Errorf("%w: artifact", services.ErrNotFound)

// Ref describes a stored artifact.
type Ref struct {
	Kind        Kind      `json:"kind"`
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
	Legacy      bool      `json:"legacy,omitempty"`
}

// Handle is the transport reference returned by Resolve: either a signed or
// public URL the client should be redirected to, or a stream.
type Handle struct {
	Ref      Ref
	URL      string
	Filename string
	open     func() (io.ReadCloser, error)
}

// Redirect reports whether the handle points at a URL rather than a stream.
func (h Handle) Redirect() bool {
	return h.URL != ""
}

// Open streams the artifact content.
func (h Handle) Open() (io.ReadCloser, error) {
	if h.open == nil {
		return nil, services.Wrap(services.ErrStorage, "", "open artifact", "handle has no stream", nil)
	}
	return h.open()
}

// Store persists artifacts under per-task namespaces.
//
// Put writes the primary key directly. Step runs use Stage instead and only
// Promote their outputs once the run is known to still own the step, so a
// superseded run never overwrites a newer one.
type Store interface {
	Put(ctx context.Context, ns Namespace, kind Kind, r io.Reader) (Ref, error)
	Stage(ctx context.Context, ns Namespace, kind Kind, attempt int, r io.Reader) (Ref, error)
	Promote(ctx context.Context, ns Namespace, staged Ref) (Ref, error)
	Discard(ctx context.Context, staged Ref) error
	Resolve(ctx context.Context, ns Namespace, kind Kind) (Handle, error)
	Exists(ctx context.Context, ns Namespace, kind Kind) (bool, error)
	Open(ctx context.Context, ns Namespace, kind Kind) (io.ReadCloser, Ref, error)
	Backend() string
}

// statFunc reports the metadata for a key, returning ok=false when absent.
type statFunc func(ctx context.Context, key string) (Ref, bool, error)

// lookup performs the two-tier resolution: primary key first, legacy key second.
func lookup(ctx context.Context, ns Namespace, kind Kind, stat statFunc) (Ref, error) {
	primary, err := ns.Key(kind)
	if err != nil {
		return Ref{}, err
	}
	ref, ok, err := stat(ctx, primary)
	if err != nil {
		return Ref{}, services.Wrap(services.ErrStorage, "", "stat artifact", primary, err)
	}
	if ok {
		ref.Kind, ref.Key = kind, primary
		return ref, nil
	}

	legacy, err := ns.LegacyKey(kind)
	if err != nil {
		return Ref{}, err
	}
	ref, ok, err = stat(ctx, legacy)
	if err != nil {
		return Ref{}, services.Wrap(services.ErrStorage, "", "stat artifact", legacy, err)
	}
	if ok {
		ref.Kind, ref.Key, ref.Legacy = kind, legacy, true
		return ref, nil
	}
	return Ref{}, fmt.Errorf("%w: %s/%s", ErrNotFound, ns.TaskID, kind)
}

// promotionKey returns the primary key for a staged ref after checking that
// the ref was staged inside ns.
func promotionKey(ns Namespace, staged Ref) (string, error) {
	key, err := ns.Key(staged.Kind)
	if err != nil {
		return "", err
	}
	prefix := strings.Join([]string{ns.Tenant, ns.Project, ns.TaskID, stagingDir}, "/") + "/"
	if !strings.HasPrefix(staged.Key, prefix) {
		return "", services.Wrap(services.ErrValidation, "", "promote artifact", fmt.Sprintf("key %q is not staged", staged.Key), nil)
	}
	return key, nil
}

func exists(ctx context.Context, ns Namespace, kind Kind, stat statFunc) (bool, error) {
	_, err := lookup(ctx, ns, kind, stat)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// DownloadName is the attachment file name offered to clients.
func DownloadName(ns Namespace, kind Kind) string {
	return ns.TaskID + "_" + kind.FileName()
}

// readerSize reports the remaining length of readers that know it, or -1.
func readerSize(r io.Reader) int64 {
	switch v := r.(type) {
	case interface{ Len() int }:
		return int64(v.Len())
	case interface {
		Stat() (os.FileInfo, error)
		Seek(int64, int) (int64, error)
	}:
		info, err := v.Stat()
		if err != nil || !info.Mode().IsRegular() {
			return -1
		}
		pos, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return -1
		}
		return info.Size() - pos
	}
	return -1
}

// countingReader tracks bytes copied into a backend.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
