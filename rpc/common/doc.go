// Package common provides the protocol elements and configuration structures shared
// by the server, the client and the transports.
//
// Key Components:
//
//   - Opcode, Status and WriteFlags: the byte values of request and response headers.
//     WriteFlags map to the storage durability levels.
//
//   - Request: a closed set of typed request structs (ReadRequest, PutRequest,
//     ScanRequest, ...) produced by decoding and consumed by the dispatcher through a
//     type switch. Each has a NewXxxRequest factory.
//
//   - Response and ScanChunk: a status, an optional error message and body frames.
//
//   - DecodeError: reported for malformed frame sequences.
//
//   - ServerConfig and ClientConfig: configuration of the server process and the
//     client, printed with String() at startup.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common
