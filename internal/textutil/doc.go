// Package textutil provides small string helpers: path segment sanitizing for
// the organizer and first-non-blank selection for layered settings.
package textutil
