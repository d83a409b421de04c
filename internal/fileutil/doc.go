// Package fileutil holds the file copy, move and hashing helpers shared by
// the archive and organizer packages.
package fileutil
