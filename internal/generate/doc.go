// Package generate produces video scripts and publish metadata, either via
// the OpenAI API or from built-in niche templates when the API is down or
// unconfigured.
package generate
