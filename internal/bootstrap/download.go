package bootstrap

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"ferrousowl/internal/paths"
)

type githubReleaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

type githubRelease struct {
	TagName string               `json:"tag_name"`
	Assets  []githubReleaseAsset `json:"assets"`
}

// hostTuple maps the running platform onto the Rust target triple used in
// release asset names.
func hostTuple(goos, goarch string) (string, error) {
	var arch string
	switch goarch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	default:
		return "", fmt.Errorf("no prebuilt ferrous-owl for architecture %s", goarch)
	}
	switch goos {
	case "linux":
		return arch + "-unknown-linux-gnu", nil
	case "darwin":
		return arch + "-apple-darwin", nil
	case "windows":
		return arch + "-pc-windows-msvc", nil
	default:
		return "", fmt.Errorf("no prebuilt ferrous-owl for %s", goos)
	}
}

func assetName(tuple, goos string) string {
	if goos == "windows" {
		return paths.ServerName + "-" + tuple + ".zip"
	}
	return paths.ServerName + "-" + tuple + ".tar.gz"
}

// installPrebuilt downloads the release asset matching the client version and
// places its binary at the release path.
func (r *Resolver) installPrebuilt(ctx context.Context) (string, error) {
	r.report(StageDownload, EventStarted, "Looking up prebuilt release")
	asset, err := r.lookupReleaseAsset(ctx, runtime.GOOS, runtime.GOARCH)
	if err != nil {
		r.report(StageDownload, EventFailed, err.Error())
		return "", err
	}

	downloads := r.layout.DownloadsDir()
	if err := os.MkdirAll(downloads, 0o755); err != nil {
		return "", fmt.Errorf("prepare downloads dir: %w", err)
	}
	archivePath, err := resolveArchivePath(downloads, asset.BrowserDownloadURL)
	if err != nil {
		return "", err
	}

	r.report(StageDownload, EventProgress, "Downloading "+asset.Name)
	if err := r.downloadArtifact(ctx, archivePath, asset.BrowserDownloadURL); err != nil {
		r.report(StageDownload, EventFailed, err.Error())
		return "", err
	}

	extractDir, err := os.MkdirTemp(downloads, "extract-")
	if err != nil {
		return "", fmt.Errorf("create extract dir: %w", err)
	}
	defer os.RemoveAll(extractDir)

	if strings.HasSuffix(archivePath, ".zip") {
		err = extractZip(archivePath, extractDir)
	} else {
		err = extractTarGz(archivePath, extractDir)
	}
	if err != nil {
		r.report(StageDownload, EventFailed, err.Error())
		return "", err
	}

	exe, err := findExecutable(extractDir, paths.ExecutableName(paths.ServerName))
	if err != nil {
		return "", err
	}
	if exe == "" {
		r.report(StageDownload, EventFailed, "binary missing from archive")
		return "", fmt.Errorf("%s not found in %s", paths.ExecutableName(paths.ServerName), asset.Name)
	}

	release := r.layout.ReleaseBinary()
	if err := placeBinary(exe, release); err != nil {
		return "", err
	}
	r.report(StageDownload, EventCompleted, asset.Name)

	ver, err := r.verify(ctx, release)
	if err != nil {
		return "", err
	}
	r.recordInstall(MethodDownload, ver, release, asset.Name)
	r.linkInBackground(release)
	return release, nil
}

func (r *Resolver) lookupReleaseAsset(ctx context.Context, goos, goarch string) (githubReleaseAsset, error) {
	tuple, err := hostTuple(goos, goarch)
	if err != nil {
		return githubReleaseAsset{}, err
	}
	if r.opts.ClientVersion == "" {
		return githubReleaseAsset{}, errors.New("client version unknown; cannot pick a release")
	}

	endpoint := fmt.Sprintf("%s/tags/%s", strings.TrimRight(r.opts.ReleaseAPI, "/"), url.PathEscape("v"+strings.TrimPrefix(r.opts.ClientVersion, "v")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return githubReleaseAsset{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "owlctl/1.0")

	resp, err := r.opts.HTTPClient.Do(req)
	if err != nil {
		return githubReleaseAsset{}, fmt.Errorf("query release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return githubReleaseAsset{}, fmt.Errorf("release v%s not found", r.opts.ClientVersion)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return githubReleaseAsset{}, fmt.Errorf("release query failed: %s", resp.Status)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return githubReleaseAsset{}, fmt.Errorf("decode release: %w", err)
	}

	want := assetName(tuple, goos)
	for _, asset := range release.Assets {
		if asset.Name == want {
			return asset, nil
		}
	}
	return githubReleaseAsset{}, fmt.Errorf("release %s has no asset %s", release.TagName, want)
}

func (r *Resolver) downloadArtifact(ctx context.Context, dest, downloadURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "owlctl/1.0")

	resp, err := r.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", downloadURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download %s: unexpected status %s", downloadURL, resp.Status)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(dest), "download-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("finalize download: %w", err)
	}
	return nil
}

func resolveArchivePath(downloadsDir, downloadURL string) (string, error) {
	parsed, err := url.Parse(downloadURL)
	if err != nil {
		return "", fmt.Errorf("parse download url: %w", err)
	}
	base := path.Base(parsed.Path)
	if base == "." || base == "" || base == "/" {
		return "", fmt.Errorf("infer archive name from url: %s", downloadURL)
	}
	return filepath.Join(downloadsDir, base), nil
}

// safeJoin rejects archive entries that would escape dest.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes extract dir", name)
	}
	return target, nil
}

// writeEntry materializes one regular archive member below dest.
func writeEntry(dest, name string, mode os.FileMode, r io.Reader) error {
	target, err := safeJoin(dest, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", name, err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0o600)
	if err != nil {
		return fmt.Errorf("extract %s: %w", name, err)
	}
	_, copyErr := io.Copy(out, r)
	closeErr := out.Close()
	if copyErr != nil {
		return fmt.Errorf("extract %s: %w", name, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("extract %s: %w", name, closeErr)
	}
	return nil
}

// extractZip only materializes regular files; the executable is located by
// name afterwards, so directory entries carry no information.
func extractZip(archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(archivePath), err)
	}
	defer zr.Close()

	for _, member := range zr.File {
		if !member.Mode().IsRegular() {
			continue
		}
		rc, err := member.Open()
		if err != nil {
			return fmt.Errorf("read %s: %w", member.Name, err)
		}
		err = writeEntry(dest, member.Name, member.Mode(), rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTarGz(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(archivePath), err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", filepath.Base(archivePath), err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", filepath.Base(archivePath), err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := writeEntry(dest, hdr.Name, hdr.FileInfo().Mode(), tr); err != nil {
			return err
		}
	}
}

func findExecutable(root, name string) (string, error) {
	var match string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Name() == name {
			match = path
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return match, nil
}

// placeBinary copies src next to dest and renames it into place so a running
// server never sees a half-written file.
func placeBinary(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("prepare %s: %w", filepath.Dir(dest), err)
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".ferrous-owl-*")
	if err != nil {
		return fmt.Errorf("create temp binary: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copy binary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp binary: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0o755); err != nil {
			return fmt.Errorf("chmod binary: %w", err)
		}
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("install binary: %w", err)
	}
	return nil
}
