// Package driving declares what the CLI, the console and the MCP server
// may ask of Bastion: query, ingest, audit review, settings, users, keys
// and index status.
//
// Each call names the acting user. Services resolve that user through the
// access gate and check the permission and clearance the call needs before
// any chunk, setting or audit record is read or written. A refused call
// returns domain.ErrAccessDenied and leaves an audit record.
package driving
