// Package discovery implements the availability beacon of YakDB servers.
//
// A server periodically sends the datagram "YakDB/<cluster name>" to a (usually
// broadcast) UDP address. Clients listen on that port for a while and collect the
// addresses of every server that announced the cluster they are looking for. The
// beacon carries no protocol semantics beyond "a server of this cluster is up".
package discovery
