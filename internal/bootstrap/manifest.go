package bootstrap

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const manifestHistoryLimit = 10

var nowFunc = time.Now

// LoadManifest reads the install manifest; a missing file is an empty manifest.
func (r *Resolver) LoadManifest() (Manifest, error) {
	contents, err := os.ReadFile(r.layout.ManifestFile())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Manifest{}, nil
		}
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(contents, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return manifest, nil
}

func (r *Resolver) saveManifest(m Manifest) error {
	path := r.layout.ManifestFile()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare manifest directory: %w", err)
	}

	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "manifest-*.json")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return fmt.Errorf("write manifest temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close manifest temp: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}

// recordInstall appends to the manifest. Failures are logged; the manifest
// never decides resolution.
func (r *Resolver) recordInstall(method InstallMethod, ver, path, asset string) {
	checksum, err := computeChecksum(path)
	if err != nil {
		r.logf("checksum %s: %v", path, err)
	}
	rec := InstallRecord{
		Method:      method,
		Version:     ver,
		Path:        path,
		Checksum:    checksum,
		Asset:       asset,
		InstalledAt: nowFunc().UTC().Format(time.RFC3339),
	}

	m, err := r.LoadManifest()
	if err != nil {
		r.logf("manifest unreadable, starting fresh: %v", err)
		m = Manifest{}
	}
	m.Current = &rec
	m.History = append(m.History, rec)
	if len(m.History) > manifestHistoryLimit {
		m.History = m.History[len(m.History)-manifestHistoryLimit:]
	}
	if err := r.saveManifest(m); err != nil {
		r.logf("save manifest: %v", err)
	}
}
