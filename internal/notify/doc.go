// Package notify pushes job lifecycle updates to a Telegram admin chat,
// consumed from the event bus. Delivery is best effort: notification failures
// never affect job state.
package notify
