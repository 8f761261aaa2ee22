// Package relay holds the client side of the key directory.
//
// HTTP implements domain.Directory: identity, pre-key and signed pre-key
// uploads, status queries and per-user device listing. Every request carries
// the calling device's address in the X-Ciphermesh-User and
// X-Ciphermesh-Device headers. Bundles returned by FetchDevices are
// validated; malformed ones are logged and handed back as rejected so the
// caller can report them. Devices the caller names as known are listed
// without claiming one of their one-time pre-keys.
//
// WS implements domain.Transport over a websocket to the same server. It
// reconnects with exponential backoff and pings every 30 seconds.
//
// Network failures and 5xx statuses wrap domain.ErrDirectoryUnavailable; a
// 404 wraps domain.ErrNotFound.
package relay
