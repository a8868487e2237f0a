// Package provision installs the native messaging host: it writes the
// per-browser manifest and downloads MeCab dictionaries into the data
// directory.
package provision

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
)

const (
	// HostName is the native messaging host name the extension connects to.
	HostName = "yomichan_mecab"
	// ManifestFileName is the manifest written into the browser's host directory.
	ManifestFileName = HostName + ".json"
)

var (
	ErrUnknownBrowser      = errors.New("provision: unknown browser")
	ErrUnsupportedPlatform = errors.New("provision: unsupported platform")
)

// Browser describes how one browser authorises extensions.
type Browser struct {
	// IDKey is the manifest key listing allowed extensions.
	IDKey string
	// DefaultIDs are always allowed.
	DefaultIDs []string
}

const yomichanChromeOrigin = "chrome-extension://ogmnaimimemjmbakcfefmnahgdfhfami/"

var browsers = map[string]Browser{
	"firefox":  {IDKey: "allowed_extensions", DefaultIDs: []string{"alex@foosoft.net"}},
	"chrome":   {IDKey: "allowed_origins", DefaultIDs: []string{yomichanChromeOrigin}},
	"chromium": {IDKey: "allowed_origins", DefaultIDs: []string{yomichanChromeOrigin}},
}

// manifest directories relative to the home directory, per GOOS and browser
var hostDirs = map[string]map[string]string{
	"linux": {
		"firefox":  ".mozilla/native-messaging-hosts",
		"chrome":   ".config/google-chrome/NativeMessagingHosts",
		"chromium": ".config/chromium/NativeMessagingHosts",
	},
	"darwin": {
		"firefox":  "Library/Application Support/Mozilla/NativeMessagingHosts",
		"chrome":   "Library/Application Support/Google/Chrome/NativeMessagingHosts",
		"chromium": "Library/Application Support/Chromium/NativeMessagingHosts",
	},
}

// Browsers returns the supported browser names, sorted.
func Browsers() []string {
	out := make([]string, 0, len(browsers))
	for name := range browsers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Manifest builds the manifest allowing the default extension IDs of
// browser plus extraIDs to launch the host at hostPath.
func Manifest(browser, hostPath string, extraIDs ...string) ([]byte, error) {
	b, ok := browsers[browser]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBrowser, browser)
	}
	ids := append(append([]string(nil), b.DefaultIDs...), extraIDs...)
	m := map[string]any{
		"name":        HostName,
		"description": "MeCab for Yomichan",
		"type":        "stdio",
		"path":        hostPath,
		b.IDKey:       ids,
	}
	return json.MarshalIndent(m, "", "    ")
}

// ManifestDir returns where browser looks for host manifests on goos for a
// user whose home is home.
func ManifestDir(goos, home, browser string) (string, error) {
	if _, ok := browsers[browser]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownBrowser, browser)
	}
	dirs, ok := hostDirs[goos]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedPlatform, goos)
	}
	return filepath.Join(home, filepath.FromSlash(dirs[browser])), nil
}

// InstallManifest writes the manifest for browser into the current user's
// host directory and returns the written path.
func InstallManifest(browser, hostPath string, extraIDs ...string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("provision: %w", err)
	}
	dir, err := ManifestDir(runtime.GOOS, home, browser)
	if err != nil {
		return "", err
	}
	return WriteManifest(dir, browser, hostPath, extraIDs...)
}

// WriteManifest writes the manifest for browser into dir, creating it.
func WriteManifest(dir, browser, hostPath string, extraIDs ...string) (string, error) {
	data, err := Manifest(browser, hostPath, extraIDs...)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("provision: %w", err)
	}
	path := filepath.Join(dir, ManifestFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("provision: %w", err)
	}
	return path, nil
}
