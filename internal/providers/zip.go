package providers

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"shortvideo/internal/services"
)

// Zip bundles entries into a ZIP archive. Already compressed media is stored.
type Zip struct{}

func (Zip) Name() string { return "zip" }

func (Zip) Bundle(ctx context.Context, w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	modified := time.Now().UTC()
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return err
		}
		name, err := cleanEntryName(entry.Name)
		if err != nil {
			_ = zw.Close()
			return err
		}
		method := zip.Deflate
		switch strings.ToLower(path.Ext(name)) {
		case ".mp4", ".mp3", ".zip":
			method = zip.Store
		}
		dst, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: modified})
		if err != nil {
			_ = zw.Close()
			return fmt.Errorf("zip entry %s: %w", name, err)
		}
		if err := copyEntry(dst, entry); err != nil {
			_ = zw.Close()
			return fmt.Errorf("zip entry %s: %w", name, err)
		}
	}
	return zw.Close()
}

func copyEntry(dst io.Writer, entry Entry) error {
	if entry.Open == nil {
		return nil
	}
	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(dst, src)
	return err
}

func cleanEntryName(name string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if cleaned == "." || cleaned == "" || strings.HasPrefix(cleaned, "/") || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", services.Wrap(services.ErrValidation, "", "bundle", fmt.Sprintf("invalid archive entry %q", name), nil)
	}
	return cleaned, nil
}
