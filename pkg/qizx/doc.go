// Package qizx is a client for the Qizx XML database REST API. A Client is
// bound to one server endpoint, resolved either from a literal URL or from a
// section of the .qizx configuration file, and exposes the full operation
// surface of the API: XQuery evaluation, document and collection management,
// property access and server administration. Connection parameters
// (credentials, TLS verification policy, client certificate) are fixed at
// construction; the Client itself is stateless and safe for concurrent use.
package qizx
