// Package archive reads and rewrites CBZ comic archives.
//
// Page entries are the image files inside the archive, ordered by name.
// ComicInfo.xml, when present, supplies the comic's descriptive metadata and
// is regenerated whenever an archive is rewritten.
package archive
