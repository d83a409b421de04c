package metadata

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"comicshelf/internal/archive"
	"comicshelf/internal/store"
)

// Source names recorded on comics.
const (
	SourceComicInfo = "comicinfo"
	SourceFilename  = "filename"
)

// Source looks up metadata for a comic. Lookup returns nil without error
// when the source has nothing to offer.
type Source interface {
	Name() string
	Lookup(ctx context.Context, comic *store.Comic) (*archive.ComicInfo, error)
}

// ComicInfoSource reads the ComicInfo.xml document inside the archive.
type ComicInfoSource struct{}

func (ComicInfoSource) Name() string { return SourceComicInfo }

func (ComicInfoSource) Lookup(_ context.Context, comic *store.Comic) (*archive.ComicInfo, error) {
	r, err := archive.Open(comic.FilePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	info, err := r.ComicInfo()
	if err != nil || info == nil {
		return nil, err
	}
	if strings.TrimSpace(info.Series) == "" {
		return nil, nil
	}
	return info, nil
}

// filenamePattern matches names such as "Saga v2012 #001 (2012-03)".
var filenamePattern = regexp.MustCompile(`^(?P<series>.+?)(?:\s+v(?P<volume>\d{1,4}))?\s+#?(?P<issue>\d+(?:\.\d+)?)(?:\s*\((?P<date>\d{4}(?:-\d{2})?)\))?\s*$`)

// FilenameSource parses metadata out of the archive's file name.
type FilenameSource struct{}

func (FilenameSource) Name() string { return SourceFilename }

func (FilenameSource) Lookup(_ context.Context, comic *store.Comic) (*archive.ComicInfo, error) {
	return ParseFilename(comic.FilePath), nil
}

// ParseFilename extracts series, volume, issue and cover date from a comic
// file name. It returns nil when the name does not look like an issue.
func ParseFilename(path string) *archive.ComicInfo {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.Join(strings.Fields(strings.ReplaceAll(stem, "_", " ")), " ")
	match := filenamePattern.FindStringSubmatch(stem)
	if match == nil {
		return nil
	}
	info := &archive.ComicInfo{}
	for idx, name := range filenamePattern.SubexpNames() {
		value := strings.TrimSpace(match[idx])
		switch name {
		case "series":
			info.Series = value
		case "volume":
			info.Volume = value
		case "issue":
			info.Number = strings.TrimLeft(value, "0")
			if info.Number == "" || strings.HasPrefix(info.Number, ".") {
				info.Number = "0" + info.Number
			}
		case "date":
			info.SetCoverDate(value)
		}
	}
	return info
}

// Chain consults sources in order and returns the first result along with
// the name of the source that produced it.
type Chain []Source

// Lookup returns the first non-nil result. Source errors are collected and
// returned only when no source produced a result.
func (c Chain) Lookup(ctx context.Context, comic *store.Comic) (*archive.ComicInfo, string, error) {
	var firstErr error
	for _, source := range c {
		info, err := source.Lookup(ctx, comic)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", source.Name(), err)
			}
			continue
		}
		if info != nil {
			return info, source.Name(), nil
		}
	}
	return nil, "", firstErr
}

// Default returns the embedded document first, then the file name.
func Default() Chain {
	return Chain{ComicInfoSource{}, FilenameSource{}}
}

// Apply copies info onto comic. Blank fields in info never clear existing
// values. When overwrite is false only blank comic fields are filled. It
// reports whether any field changed.
func Apply(comic *store.Comic, info *archive.ComicInfo, overwrite bool) bool {
	if comic == nil || info == nil {
		return false
	}
	changed := false
	set := func(field *string, value string) {
		value = strings.TrimSpace(value)
		if value == "" || *field == value {
			return
		}
		if !overwrite && strings.TrimSpace(*field) != "" {
			return
		}
		*field = value
		changed = true
	}
	set(&comic.Publisher, info.Publisher)
	set(&comic.Series, info.Series)
	set(&comic.Volume, info.Volume)
	set(&comic.IssueNumber, info.Number)
	set(&comic.Title, info.Title)
	set(&comic.CoverDate, info.CoverDate())
	return changed
}

// ToComicInfo renders the comic's metadata as a ComicInfo document.
func ToComicInfo(comic *store.Comic, pageCount int) *archive.ComicInfo {
	info := &archive.ComicInfo{
		Title:     comic.Title,
		Series:    comic.Series,
		Number:    comic.IssueNumber,
		Volume:    comic.Volume,
		Publisher: comic.Publisher,
		PageCount: pageCount,
	}
	info.SetCoverDate(comic.CoverDate)
	return info
}
