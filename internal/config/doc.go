// Package config provides the process-wide layered key/value store and
// the secret store.
//
// Resolution order for Store.Get is:
//
//  1. Environment variable UPPERCASE(key) (dots and dashes become
//     underscores), parsed as JSON with a raw-string fallback, so
//     MAX_TURNS=42 yields an int and GOOSE_PROVIDER=anthropic a string.
//  2. The YAML config file at the platform config dir.
//  3. An optional JSONC override file merged on top of the YAML layer.
//
// Secrets resolve through GetSecret: environment variable first, then a
// single JSON blob in the OS keyring, or a secrets YAML file when
// GOOSE_DISABLE_KEYRING is set.
//
// Every Set/Delete rewrites the config file atomically: the current file
// is copied to config.bak (rotating config.bak.{1..5} one step first,
// and only when the current file still parses), then the new contents go
// to a locked temp file that is fsynced and renamed into place. Reads
// recover from a corrupt file by restoring the newest parseable backup;
// when none parses a fresh default is written and the error is logged
// loudly. The store never panics on corruption.
//
// Config keys take their environment overrides through Store.Get and
// GetSecret. Other settings (the XDG and HOME paths, SHELL,
// GOOSE_DISABLE_KEYRING, GOOSE_MEMORY_DIR) are read from the environment
// directly.
package config
