// Package app wires application dependencies for the CLI.
//
// Config is read from an optional YAML file, a .env file and CIPHERMESH_*
// environment variables, in that order. NewWire turns it into concrete
// stores, the directory client, the websocket transport and the session,
// dispatch and key lifecycle services. App exposes the operations commands
// call: SendToUser, RegisterTypeCallback and the metrics report.
package app
