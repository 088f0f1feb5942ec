// Package unix implements the rpc transport over Unix domain sockets for clients
// running on the same machine as the server. It inherits connection pooling and
// request routing from the base package.
//
// The default server read buffer is 64 KB.
package unix
