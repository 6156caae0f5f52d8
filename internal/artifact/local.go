package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shortvideo/internal/services"
)

// LocalStore keeps artifacts as files below a root directory.
type LocalStore struct {
	root string
}

// NewLocalStore prepares the root directory.
func NewLocalStore(root string) (*LocalStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "artifact store", "local root is empty", nil)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, services.Wrap(services.ErrStorage, "", "artifact store", "create root", err)
	}
	return &LocalStore{root: abs}, nil
}

// Backend names the storage backend.
func (s *LocalStore) Backend() string { return "local" }

// Root returns the absolute root directory.
func (s *LocalStore) Root() string { return s.root }

// Put writes through a temp file, fsyncs it, then renames it into place so
// the artifact becomes visible only once durable.
func (s *LocalStore) Put(ctx context.Context, ns Namespace, kind Kind, r io.Reader) (Ref, error) {
	key, err := ns.Key(kind)
	if err != nil {
		return Ref{}, err
	}
	return s.write(ctx, key, kind, r)
}

// Stage writes the artifact below the attempt's staging directory.
func (s *LocalStore) Stage(ctx context.Context, ns Namespace, kind Kind, attempt int, r io.Reader) (Ref, error) {
	key, err := ns.StagingKey(kind, attempt)
	if err != nil {
		return Ref{}, err
	}
	return s.write(ctx, key, kind, r)
}

// Promote renames a staged file onto the primary key.
func (s *LocalStore) Promote(_ context.Context, ns Namespace, staged Ref) (Ref, error) {
	key, err := promotionKey(ns, staged)
	if err != nil {
		return Ref{}, err
	}
	from, err := s.pathFor(staged.Key)
	if err != nil {
		return Ref{}, err
	}
	to, err := s.pathFor(key)
	if err != nil {
		return Ref{}, err
	}
	dir := filepath.Dir(to)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Ref{}, services.Wrap(services.ErrStorage, "", "promote artifact", "create directory", err)
	}
	if err := os.Rename(from, to); err != nil {
		return Ref{}, services.Wrap(services.ErrStorage, "", "promote artifact", key, err)
	}
	syncDir(dir)
	s.pruneStaging(filepath.Dir(from))
	promoted := staged
	promoted.Key = key
	return promoted, nil
}

// Discard removes a staged file. A missing file is not an error.
func (s *LocalStore) Discard(_ context.Context, staged Ref) error {
	path, err := s.pathFor(staged.Key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return services.Wrap(services.ErrStorage, "", "discard artifact", staged.Key, err)
	}
	s.pruneStaging(filepath.Dir(path))
	return nil
}

// pruneStaging removes empty directories up to and including the task's
// staging directory.
func (s *LocalStore) pruneStaging(dir string) {
	for dir != s.root && strings.HasPrefix(dir, s.root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		if filepath.Base(dir) == stagingDir {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (s *LocalStore) write(ctx context.Context, key string, kind Kind, r io.Reader) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}
	target, err := s.pathFor(key)
	if err != nil {
		return Ref{}, err
	}
	dir := filepath.Dir(target)
	tmp, err := createTemp(dir)
	if err != nil {
		return Ref{}, err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	counter := &countingReader{r: r}
	if _, err := io.Copy(tmp, counter); err != nil {
		return Ref{}, services.Wrap(services.ErrStorage, "", "put artifact", key, err)
	}
	if err := tmp.Sync(); err != nil {
		return Ref{}, services.Wrap(services.ErrStorage, "", "put artifact", "sync", err)
	}
	if err := tmp.Close(); err != nil {
		return Ref{}, services.Wrap(services.ErrStorage, "", "put artifact", "close", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return Ref{}, services.Wrap(services.ErrStorage, "", "put artifact", "rename", err)
	}
	committed = true
	syncDir(dir)

	return Ref{
		Kind:        kind,
		Key:         key,
		Size:        counter.n,
		ContentType: kind.ContentType(),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Resolve returns a stream handle for the artifact.
func (s *LocalStore) Resolve(ctx context.Context, ns Namespace, kind Kind) (Handle, error) {
	ref, err := lookup(ctx, ns, kind, s.stat)
	if err != nil {
		return Handle{}, err
	}
	target, err := s.pathFor(ref.Key)
	if err != nil {
		return Handle{}, err
	}
	return Handle{
		Ref:      ref,
		Filename: DownloadName(ns, kind),
		open: func() (io.ReadCloser, error) {
			return os.Open(target)
		},
	}, nil
}

// Exists reports whether the artifact is present under either key layout.
func (s *LocalStore) Exists(ctx context.Context, ns Namespace, kind Kind) (bool, error) {
	return exists(ctx, ns, kind, s.stat)
}

// Open streams the artifact content.
func (s *LocalStore) Open(ctx context.Context, ns Namespace, kind Kind) (io.ReadCloser, Ref, error) {
	handle, err := s.Resolve(ctx, ns, kind)
	if err != nil {
		return nil, Ref{}, err
	}
	rc, err := handle.Open()
	if err != nil {
		return nil, Ref{}, services.Wrap(services.ErrStorage, "", "open artifact", handle.Ref.Key, err)
	}
	return rc, handle.Ref, nil
}

func (s *LocalStore) stat(_ context.Context, key string) (Ref, bool, error) {
	target, err := s.pathFor(key)
	if err != nil {
		return Ref{}, false, err
	}
	info, err := os.Stat(target)
	if os.IsNotExist(err) {
		return Ref{}, false, nil
	}
	if err != nil {
		return Ref{}, false, err
	}
	if !info.Mode().IsRegular() {
		return Ref{}, false, nil
	}
	return Ref{
		Size:        info.Size(),
		ContentType: ContentTypeFor(target),
		CreatedAt:   info.ModTime().UTC(),
	}, true, nil
}

func (s *LocalStore) pathFor(key string) (string, error) {
	target := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", services.Wrap(services.ErrValidation, "", "artifact", fmt.Sprintf("key %q escapes store root", key), nil)
	}
	return target, nil
}

// createTemp makes dir and a temp file inside it, retrying once when a
// concurrent prune removes an empty staging directory in between.
func createTemp(dir string) (*os.File, error) {
	var err error
	for range 2 {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, services.Wrap(services.ErrStorage, "", "put artifact", "create directory", err)
		}
		var tmp *os.File
		tmp, err = os.CreateTemp(dir, ".put-*")
		if err == nil {
			return tmp, nil
		}
		if !os.IsNotExist(err) {
			break
		}
	}
	return nil, services.Wrap(services.ErrStorage, "", "put artifact", "create temp file", err)
}

func syncDir(dir string) {
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = f.Sync()
	_ = f.Close()
}
