// Package metadata resolves descriptive comic metadata (publisher, series,
// volume, issue, title, cover date) from the sources available offline: the
// ComicInfo.xml document embedded in the archive and the archive's file name.
package metadata
