package provision

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"k8s.io/klog/v2"
)

// ErrUnknownDictionary is returned for a dictionary with no download source.
var ErrUnknownDictionary = errors.New("provision: unknown dictionary")

// ErrUnsafeArchive is returned for an archive entry that would land outside
// the extraction directory.
var ErrUnsafeArchive = errors.New("provision: archive entry escapes target")

// DictionaryURLs lists the downloadable dictionaries. Each archive unpacks
// to a directory named after the dictionary.
var DictionaryURLs = map[string]string{
	"ipadic": "https://github.com/siikamiika/yomichan-mecab-installer/releases/download/ipadic-1/ipadic.zip",
}

// Dictionaries returns the downloadable dictionary names, sorted.
func Dictionaries() []string {
	out := make([]string, 0, len(DictionaryURLs))
	for name := range DictionaryURLs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Downloader fetches dictionary archives into a data directory.
type Downloader struct {
	Client  *http.Client
	DataDir string
	URLs    map[string]string
}

// Install downloads the named dictionary and extracts it into DataDir.
func (d *Downloader) Install(ctx context.Context, name string) error {
	urls := d.URLs
	if urls == nil {
		urls = DictionaryURLs
	}
	url, ok := urls[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDictionary, name)
	}
	if err := os.MkdirAll(d.DataDir, 0o755); err != nil {
		return fmt.Errorf("provision: %w", err)
	}

	tmp, err := os.CreateTemp("", "mecab-dict-*.zip")
	if err != nil {
		return fmt.Errorf("provision: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	klog.InfoS("Downloading dictionary", "dictionary", name, "url", url)
	n, err := d.fetch(ctx, url, tmp)
	if err != nil {
		return err
	}
	klog.InfoS("Extracting dictionary", "dictionary", name, "bytes", n, "into", d.DataDir)
	if err := Extract(tmp, n, d.DataDir); err != nil {
		return err
	}
	klog.InfoS("Dictionary installed", "dictionary", name)
	return nil
}

func (d *Downloader) fetch(ctx context.Context, url string, w io.Writer) (int64, error) {
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("provision: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("provision: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("provision: download %s: %s", url, resp.Status)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("provision: download: %w", err)
	}
	return n, nil
}

// Extract unpacks the zip archive in r (size bytes long) into dir. Entries
// with absolute paths or ".." components are rejected before anything is
// written.
func Extract(r io.ReaderAt, size int64, dir string) error {
	zr, err := zip.NewReader(r, size)
	if errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("%w: %v", ErrUnsafeArchive, err)
	}
	if err != nil {
		return fmt.Errorf("provision: open archive: %w", err)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("provision: %w", err)
	}
	targets := make([]string, len(zr.File))
	for i, f := range zr.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if filepath.IsAbs(filepath.FromSlash(f.Name)) || !strings.HasPrefix(target+string(filepath.Separator), root+string(filepath.Separator)) {
			return fmt.Errorf("%w: %q", ErrUnsafeArchive, f.Name)
		}
		targets[i] = target
	}
	for i, f := range zr.File {
		if err := extractFile(f, targets[i]); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("provision: %s: %w", f.Name, err)
	}
	defer src.Close()
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("provision: %s: %w", f.Name, err)
	}
	return dst.Close()
}
