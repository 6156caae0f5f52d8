package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"

	"shortvideo/internal/artifact"
	"shortvideo/internal/fileutil"
	"shortvideo/internal/providers"
	"shortvideo/internal/services"
	"shortvideo/internal/stage"
)

// bundleTo archives entries into a spool file and stores it as kind.
func bundleTo(ctx context.Context, env *stage.Env, packager providers.Packager, dir string, kind artifact.Kind, entries []providers.Entry) (artifact.Ref, error) {
	spooled, err := fileutil.Spool(dir, SpoolPattern, func(w io.Writer) error {
		return packager.Bundle(ctx, w, entries)
	})
	if err != nil {
		if ctx.Err() != nil {
			return artifact.Ref{}, ctx.Err()
		}
		if errors.Is(err, services.ErrValidation) || errors.Is(err, services.ErrStorage) {
			return artifact.Ref{}, err
		}
		return artifact.Ref{}, services.Wrap(services.ErrCollaborator, "", "bundle", string(kind), err)
	}
	defer spooled.Close()
	return env.Put(ctx, kind, spooled)
}

func memoryEntry(name string, data []byte) providers.Entry {
	return providers.Entry{
		Name: name,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

func artifactEntry(ctx context.Context, env *stage.Env, name string, kind artifact.Kind) providers.Entry {
	return providers.Entry{
		Name: name,
		Open: func() (io.ReadCloser, error) { return env.Open(ctx, kind) },
	}
}
