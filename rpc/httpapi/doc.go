// Package httpapi is the auxiliary HTTP front end of a YakDB server.
//
// Routes:
//
//	GET    /health                             liveness
//	GET    /metrics                            Prometheus text format
//	GET    /api/info                           server summary
//	GET    /api/tables/{table}/info            table parameters and statistics
//	GET    /api/tables/{table}/count           ?start=&end= key count
//	GET    /api/tables/{table}/keys/{key}      raw value
//	PUT    /api/tables/{table}/keys/{key}      body is the value, ?sync=part|full
//	DELETE /api/tables/{table}/keys/{key}      ?sync=part|full
//
// Keys are path-unescaped, so arbitrary bytes can be addressed as %XX sequences.
// Every request holds a lifecycle token while it runs, which makes server shutdown
// wait for it; requests arriving while the server drains get 503.
package httpapi
