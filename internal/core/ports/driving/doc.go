// Package driving provides interfaces for application entry points
// (primary/inbound ports) exposed to the surrounding system: the CLI,
// the MCP server, and the capture watcher.
package driving
