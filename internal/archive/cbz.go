package archive

import (
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/klauspost/compress/zip"

	"comicshelf/internal/fileutil"
)

// ComicInfoName is the metadata entry written into every rewritten archive.
const ComicInfoName = "ComicInfo.xml"

// ErrUnsupportedFormat is returned for archives other than CBZ.
var ErrUnsupportedFormat = errors.New("archive: unsupported format")

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// IsImage reports whether name looks like a page image.
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(path.Ext(name))]
}

// TypeFor returns the archive type for a file name ("cbz") or an error.
func TypeFor(name string) (string, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".cbz", ".zip":
		return "cbz", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path.Ext(name))
	}
}

// Reader gives access to the entries of an open archive.
type Reader struct {
	zr    *zip.ReadCloser
	pages []*zip.File
	info  *zip.File
}

// Open opens the CBZ archive at filename.
func Open(filename string) (*Reader, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", filename, err)
	}
	r := &Reader{zr: zr}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		base := path.Base(f.Name)
		switch {
		case strings.EqualFold(base, ComicInfoName):
			r.info = f
		case strings.HasPrefix(base, "."):
		case IsImage(base):
			r.pages = append(r.pages, f)
		}
	}
	slices.SortFunc(r.pages, func(a, b *zip.File) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return r, nil
}

// Close releases the archive.
func (r *Reader) Close() error {
	return r.zr.Close()
}

// Pages returns page entry names in page order.
func (r *Reader) Pages() []string {
	names := make([]string, len(r.pages))
	for i, f := range r.pages {
		names[i] = f.Name
	}
	return names
}

// OpenPage opens the named page entry.
func (r *Reader) OpenPage(name string) (io.ReadCloser, error) {
	for _, f := range r.pages {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("page %q not found in archive", name)
}

// HashPage returns the SHA-256 digest of the named page.
func (r *Reader) HashPage(name string) (string, error) {
	rc, err := r.OpenPage(name)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return fileutil.HashReader(rc)
}

// ComicInfo decodes the embedded ComicInfo.xml. It returns nil without error
// when the archive has none.
func (r *Reader) ComicInfo() (*ComicInfo, error) {
	if r.info == nil {
		return nil, nil
	}
	rc, err := r.info.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ComicInfoName, err)
	}
	defer rc.Close()
	return DecodeComicInfo(rc)
}

// Rewrite writes a new CBZ at dst containing the pages of src for which keep
// returns true, in page order, followed by info when non-nil. dst may equal
// src; the replacement is atomic.
func Rewrite(src, dst string, keep func(name string) bool, info *ComicInfo) (int, error) {
	r, err := Open(src)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	written := 0
	err = fileutil.WriteFileAtomic(dst, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		for _, f := range r.pages {
			if keep != nil && !keep(f.Name) {
				continue
			}
			if err := copyEntry(zw, f); err != nil {
				return err
			}
			written++
		}
		if info != nil {
			entry, err := zw.Create(ComicInfoName)
			if err != nil {
				return fmt.Errorf("create %s: %w", ComicInfoName, err)
			}
			if err := info.Encode(entry); err != nil {
				return err
			}
		}
		return zw.Close()
	})
	if err != nil {
		return 0, fmt.Errorf("rewrite archive %s: %w", dst, err)
	}
	return written, nil
}

func copyEntry(zw *zip.Writer, f *zip.File) error {
	// Images are already compressed.
	out, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Store, Modified: f.Modified})
	if err != nil {
		return fmt.Errorf("create entry %s: %w", f.Name, err)
	}
	in, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer in.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy entry %s: %w", f.Name, err)
	}
	return nil
}
