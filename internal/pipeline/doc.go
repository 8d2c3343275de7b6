// Package pipeline produces and publishes one video per job: content
// generation (with template fallback), thumbnail and video rendering, then a
// retried, circuit-broken YouTube upload.
package pipeline
