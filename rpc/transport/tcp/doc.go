// Package tcp implements the TCP socket transport of the rpc system on top of the
// base package. Both sides tune their sockets from the transport section of the
// config (no delay, keep alive, linger and socket buffer sizes).
//
// The default server read buffer is 512 KB. Larger frames are read into a
// temporary buffer.
package tcp
