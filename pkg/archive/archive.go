// Package archive reads and edits the jar/zip archives handled by the
// installers and the native extractor.
package archive

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/provide-io/launchkit/pkg/launcherr"
)

// ManifestPath is the location of the jar manifest.
const ManifestPath = "META-INF/MANIFEST.MF"

// ErrEntryNotFound is returned for a name absent from the archive.
var ErrEntryNotFound = errors.New("❌ archive entry not found")

// ErrUnsafePath is returned for an entry name that resolves outside its
// destination directory.
var ErrUnsafePath = errors.New("❌ archive entry escapes destination")

// SafeJoin joins the slash-separated entry name onto dir and rejects
// results that land outside dir.
func SafeJoin(dir, name string) (string, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q in %s", ErrUnsafePath, name, dir)
	}
	return target, nil
}

// Archive is an opened jar or zip.
type Archive interface {
	Has(name string) bool
	// Names lists the file entries (not directories) in archive order.
	Names() []string
	ReadFile(name string) ([]byte, error)
	// ExtractFile writes one entry to dest, creating parent directories.
	ExtractFile(name, dest string) error
	// ExtractAll unpacks every entry below dir, skipping names that start
	// with an excluded prefix.
	ExtractAll(dir string, exclude []string) error
	// MainClass returns Main-Class from the manifest.
	MainClass() (string, error)
	Close() error
}

// Reader opens archives. Installers depend on this rather than on zip.
type Reader interface {
	Open(path string) (Archive, error)
}

// Zip is the Reader backed by the zip format.
type Zip struct{}

var _ Reader = Zip{}

func (Zip) Open(path string) (Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	files := make(map[string]*zip.File, len(rc.File))
	for _, f := range rc.File {
		files[f.Name] = f
	}
	return &zipArchive{path: path, rc: rc, files: files}, nil
}

type zipArchive struct {
	path  string
	rc    *zip.ReadCloser
	files map[string]*zip.File
}

func (a *zipArchive) Has(name string) bool {
	_, ok := a.files[name]
	return ok
}

func (a *zipArchive) Names() []string {
	names := make([]string, 0, len(a.rc.File))
	for _, f := range a.rc.File {
		if !f.FileInfo().IsDir() {
			names = append(names, f.Name)
		}
	}
	return names
}

func (a *zipArchive) ReadFile(name string) ([]byte, error) {
	f, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrEntryNotFound, name, a.path)
	}
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func (a *zipArchive) ExtractFile(name, dest string) error {
	f, ok := a.files[name]
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrEntryNotFound, name, a.path)
	}
	return writeEntry(f, dest)
}

func (a *zipArchive) ExtractAll(dir string, exclude []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, f := range a.rc.File {
		if excluded(f.Name, exclude) {
			continue
		}
		target, err := SafeJoin(dir, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := writeEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func (a *zipArchive) MainClass() (string, error) {
	data, err := a.ReadFile(ManifestPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", launcherr.ErrMainClassNotFound, a.path, err)
	}
	main := ParseManifest(data)["Main-Class"]
	if main == "" {
		return "", fmt.Errorf("%w: %s", launcherr.ErrMainClassNotFound, a.path)
	}
	return main, nil
}

func (a *zipArchive) Close() error {
	return a.rc.Close()
}

func excluded(name string, exclude []string) bool {
	for _, prefix := range exclude {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func writeEntry(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// ParseManifest reads the main section of a jar manifest. Continuation
// lines (leading space) are folded into the previous value.
func ParseManifest(data []byte) map[string]string {
	out := make(map[string]string)
	var last string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, " ") && last != "" {
			out[last] += line[1:]
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		last = strings.TrimSpace(key)
		out[last] = strings.TrimSpace(value)
	}
	return out
}

// RemoveEntry rewrites the archive at path without the named entry. It is
// a no-op when the entry is absent.
func RemoveEntry(path, name string) error {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", path, err)
	}
	found := false
	for _, f := range rc.File {
		if f.Name == name {
			found = true
			break
		}
	}
	if !found {
		return rc.Close()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		_ = rc.Close()
		return err
	}
	tmpName := tmp.Name()

	err = copyWithout(rc, tmp, name)
	closeErr := tmp.Close()
	_ = rc.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rewrite archive %s: %w", path, err)
	}
	return os.Rename(tmpName, path)
}

func copyWithout(rc *zip.ReadCloser, out io.Writer, name string) error {
	w := zip.NewWriter(out)
	for _, f := range rc.File {
		if f.Name == name {
			continue
		}
		hdr := f.FileHeader
		dst, err := w.CreateHeader(&hdr)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		src, err := f.Open()
		if err != nil {
			return err
		}
		_, err = io.Copy(dst, src)
		_ = src.Close()
		if err != nil {
			return err
		}
	}
	return w.Close()
}

// CreateZip writes a new zip at dest. files maps entry names to source
// paths; missing sources are skipped and reported in the returned list.
func CreateZip(dest string, files map[string]string) (skipped []string, err error) {
	entries := make(map[string][]byte, len(files))
	for entry, src := range files {
		data, err := os.ReadFile(src)
		if errors.Is(err, fs.ErrNotExist) {
			skipped = append(skipped, entry)
			continue
		}
		if err != nil {
			return nil, err
		}
		entries[entry] = data
	}
	slices.Sort(skipped)
	return skipped, WriteEntries(dest, entries)
}

// WriteEntries writes a new zip at dest holding entries in name order.
func WriteEntries(dest string, entries map[string][]byte) (err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(dest)
		}
	}()

	w := zip.NewWriter(out)
	for _, name := range slices.Sorted(maps.Keys(entries)) {
		dst, err := w.Create(name)
		if err != nil {
			return err
		}
		if _, err := dst.Write(entries[name]); err != nil {
			return err
		}
	}
	return w.Close()
}
