// Package server implements the YakDB request dispatcher.
//
// A server owns a Tablespace, a fixed pool of workers, the scan job manager and the
// lifecycle registry that tracks every running task. Requests of all connections
// arrive on the shared inbound queue of the transport; each worker decodes one
// request, executes it and sends the response to the originating peer:
//
//   - Read, Exists, Count, Put, Delete and DeleteRange run inline on the worker and
//     open their table on first access.
//   - Compact and Truncate run on their own tracked goroutine so the pool keeps
//     serving; the response is sent when they are done.
//   - Scan and LimitedScan create a scan job, acknowledge it with the job id and
//     stream the chunks from the job's goroutine.
//   - TableClose and Truncate cancel the scan jobs of their table first.
//
// A malformed request fails with StatusProtocolError and affects nothing else. Engine
// errors of a single key are reported in that key's result frame.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Transport: common.ServerTransportConfig{TransportType: "tcp", Endpoint: "0.0.0.0:7100"},
//	  DataDir:   "./data",
//	  Workers:   8,
//	}
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewFrameSerializer())
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	if err := s.Serve(ctx); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Shutdown:
//
// Cancelling the context passed to Serve stops the transport intake, cancels all scan
// jobs, waits (bounded by ShutdownTimeoutSecond) until no task is running, flushes the
// remaining responses, closes the connections and finally closes every table. No table
// is closed while a task may still use it.
//
// Metrics:
//
// Request counters, error counters and latency histograms per opcode as well as open
// table, live task and scan job gauges are kept in a VictoriaMetrics set and served
// at /metrics of the HTTP front end.
package server
