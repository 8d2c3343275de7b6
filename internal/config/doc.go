// Package config loads the YAML/JSON configuration with strict decoding,
// layers environment overrides on top, and hot-reloads the file via fsnotify.
package config
