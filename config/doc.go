// Package config holds the read-only index configuration consumed by the
// mergers: attribute columns, source groups and summary groups, plus their
// file compression settings.
//
// Schemas are loaded from YAML or JSON with LoadSchema. Loading never panics;
// malformed input is reported as status.ErrInvalidArgs.
package config
