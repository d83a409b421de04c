// Package config loads, normalizes, and validates comicshelf configuration.
//
// Configuration lives in TOML (default ~/.config/comicshelf/config.toml). Load
// applies defaults, expands ~ in paths, and validates the result. Library
// values here only seed the runtime options store; operators change them
// without a restart through `comicshelf options set`.
package config
