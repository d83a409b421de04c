// Package organizer places comic archives in the library.
//
// A renaming rule such as "$PUBLISHER/$SERIES/$SERIES #$ISSUE" is expanded
// against a comic's metadata into a path relative to the library target
// directory. Relocate moves the archive there with collision-safe naming and
// verified cross-filesystem copies, then prunes directories the move left
// empty. The organize_library job and the MOVE_COMICS task both go through
// this package so every file move is logged the same way.
package organizer
