// Package tcp implements the TCP socket transport. It provides the TCP specific
// connectors for the base package: listening, dialing and applying the TCPConf and
// SocketConf options (no delay, keep-alive, linger, socket buffer sizes) to every
// connection.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
package tcp
