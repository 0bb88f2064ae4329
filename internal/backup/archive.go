package backup

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// WriteTarGz archives dirs into w. Entry names are relative to each
// directory's parent so that restoring recreates the directory itself.
func WriteTarGz(w io.Writer, dirs []string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	for _, dir := range dirs {
		if err := addDir(tw, dir); err != nil {
			_ = tw.Close()
			_ = gz.Close()
			return err
		}
	}

	if err := tw.Close(); err != nil {
		_ = gz.Close()
		return fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}
	return nil
}

func addDir(tw *tar.Writer, dir string) error {
	base := filepath.Dir(filepath.Clean(dir))
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write header %s: %w", rel, err)
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("archive %s: %w", rel, err)
		}
		return nil
	})
}

var secretMarkers = []string{"KEY", "SECRET", "PASSWORD", "TOKEN"}

const redacted = "REDACTED"

// isSecret reports whether an environment variable name looks sensitive.
func isSecret(name string) bool {
	upper := strings.ToUpper(name)
	for _, m := range secretMarkers {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

// Snapshot is the configuration backup document.
type Snapshot struct {
	Environment map[string]string `json:"environment"`
	Database    map[string]string `json:"database"`
	APIKeys     map[string]bool   `json:"api_keys_configured"`
}

// NewSnapshot builds a snapshot from KEY=VALUE pairs, redacting secrets.
func NewSnapshot(environ []string) Snapshot {
	env := make(map[string]string, len(environ))
	raw := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		raw[k] = v
		if isSecret(k) {
			v = redacted
		}
		env[k] = v
	}

	return Snapshot{
		Environment: env,
		Database: map[string]string{
			"host": raw["DATABASE_HOST"],
			"port": raw["DATABASE_PORT"],
			"name": raw["DATABASE_NAME"],
		},
		APIKeys: map[string]bool{
			"openweathermap": raw["OPENWEATHERMAP_API_KEY"] != "",
			"mapbox":         raw["MAPBOX_ACCESS_TOKEN"] != "",
		},
	}
}

// WriteSnapshot writes s as zstd-compressed indented JSON.
func WriteSnapshot(w io.Writer, s Snapshot) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a snapshot written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()
	var s Snapshot
	if err := json.NewDecoder(zr).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}
