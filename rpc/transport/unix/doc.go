// Package unix implements the transport over Unix domain sockets for clients running
// on the same machine as the server.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets
//
//   - serverConnector: Creates Unix socket listeners (removing a stale socket file
//     first) and accepts connections
package unix
