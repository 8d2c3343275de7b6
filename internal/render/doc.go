// Package render turns generated content into media files on disk.
package render
