// Package main runs the in-memory key directory and relay used by ciphermesh
// during development and tests. Devices publish public key material, fetch
// one bundle per device of a user and exchange wire items over a websocket.
//
// Every /v1 request names its device with the X-Ciphermesh-User and
// X-Ciphermesh-Device headers; requests without them get 401.
//
// HTTP API
//
//	PUT /v1/devices/self/identity
//	    Store the device's identity key, signing key and registration id.
//	    A changed identity drops the device's previously published pre-keys.
//
//	PUT /v1/devices/self/prekeys
//	    Add one-time pre-keys. A key with an id already held replaces it.
//
//	PUT /v1/devices/self/signed
//	    Replace the current signed pre-key.
//
//	DELETE /v1/devices/self/signed/{id}
//	    Drop the signed pre-key {id} if it is the current one.
//
//	GET /v1/devices/self/status
//	    Report what the directory holds for the caller.
//
//	GET /v1/users/{user}/devices
//	    Return one bundle per device of {user} and of the caller's own user,
//	    excluding the calling device. Each bundle takes one one-time pre-key,
//	    except for devices named by a ?known=user.device parameter: those
//	    show their oldest pre-key without removing it.
//
//	GET /v1/ws
//	    Upgrade to a websocket. Wire items written by the device are routed
//	    to their recipient; items for offline devices are queued and flushed
//	    on the next connect.
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - Responses are JSON. Non-2xx statuses carry a short error message.
//   - An access log records method, path, status, bytes and duration.
//   - The default listen address is :8080.
package main
