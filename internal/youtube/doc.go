// Package youtube wraps the YouTube Data API v3 upload surface with
// per-channel OAuth refresh-token authentication.
package youtube
