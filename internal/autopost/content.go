// Package autopost picks locator/image pairs from per-destination content
// directories and publishes them on a schedule.
package autopost

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ArchiveDir is the subdirectory consumed files are moved into.
const ArchiveDir = "archive"

// ErrNoContent means the directory lacks a text file or an image.
var ErrNoContent = errors.New("no content available")

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// Inventory lists the candidate files of one content directory, as paths.
type Inventory struct {
	Texts  []string
	Images []string
}

// Item is one selected pair.
type Item struct {
	TextPath  string
	ImagePath string
	Locator   string
}

// Scan partitions the regular files directly under dir into locator text
// files and images. Text files that are blank after trimming are left out,
// so they are never selected or archived. The archive directory and other
// subdirectories are ignored.
func Scan(dir string) (Inventory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Inventory{}, fmt.Errorf("read content dir: %w", err)
	}

	var inv Inventory
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		switch {
		case ext == ".txt":
			path := filepath.Join(dir, name)
			locator, err := ReadLocator(path)
			if err != nil {
				return Inventory{}, err
			}
			if locator != "" {
				inv.Texts = append(inv.Texts, path)
			}
		case imageExts[ext]:
			inv.Images = append(inv.Images, filepath.Join(dir, name))
		}
	}
	sort.Strings(inv.Texts)
	sort.Strings(inv.Images)
	return inv, nil
}

// Picker returns a uniformly random index in [0, n).
type Picker func(n int) int

// Select picks a text file at random and pairs it with the image sharing its
// base name, or with a random image when there is none. It reports false if
// either list is empty.
func Select(inv Inventory, pick Picker) (textPath, imagePath string, ok bool) {
	if len(inv.Texts) == 0 || len(inv.Images) == 0 {
		return "", "", false
	}

	textPath = inv.Texts[pick(len(inv.Texts))]
	base := baseName(textPath)
	for _, img := range inv.Images {
		if baseName(img) == base {
			return textPath, img, true
		}
	}
	return textPath, inv.Images[pick(len(inv.Images))], true
}

func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ReadLocator returns the trimmed contents of a locator text file.
func ReadLocator(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read locator: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Archive moves each file into dir/archive, prefixing its name with the
// timestamp. It returns the new paths of the files it moved.
func Archive(dir string, now time.Time, files ...string) ([]string, error) {
	archive := filepath.Join(dir, ArchiveDir)
	if err := os.MkdirAll(archive, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	stamp := now.Format("20060102-150405")
	var moved []string
	var errs []error
	for _, f := range files {
		dst := filepath.Join(archive, stamp+"_"+filepath.Base(f))
		if err := os.Rename(f, dst); err != nil {
			errs = append(errs, fmt.Errorf("archive %s: %w", filepath.Base(f), err))
			continue
		}
		moved = append(moved, dst)
	}
	return moved, errors.Join(errs...)
}
