// Package commands defines the ciphermesh CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init           Create the local identity or show the existing one
//   - fingerprint    Print the identity fingerprint
//   - status         Publish key material and show the directory's view of it
//   - send           Encrypt a message for every device of a user
//   - listen         Receive and decrypt messages until interrupted
//   - metrics        Run key checks and print the counters
//
// # Configuration
//
// Settings come from the file named by --config (or CIPHERMESH_CONFIG), a
// .env file and CIPHERMESH_* variables. Flags set on the command line win.
//
// # Implementation
//
// The root command builds the full dependency graph (stores, directory
// client, transport, services) before any subcommand runs and closes it
// afterwards, so handlers share one app context.
package commands
