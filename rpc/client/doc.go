// Package client implements the typed YakDB client.
//
// The client encodes requests with a serializer.IRPCSerializer and sends them through a
// transport.IRPCClientTransport. Request/response operations use the pooled
// connections of the transport; scans use a dedicated connection per stream.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:              []string{"localhost:7100"},
//	    RetryCount:             3,
//	    ConnectionsPerEndpoint: 2,
//	  },
//	  TimeoutSecond: 5,
//	}
//
//	c, err := client.NewRPCClient(config, tcp.NewTCPClientTransport(), serializer.NewFrameSerializer())
//	if err != nil {
//	  log.Fatalf("Failed to connect: %v", err)
//	}
//	defer c.Close()
//
//	err = c.Put(ctx, 0, db.DurabilityGroupCommit, db.KeyValue{Key: []byte("k"), Value: []byte("v")})
//	results, err := c.Read(ctx, 0, []byte("k"), []byte("missing"))
//
//	stream, err := c.Scan(ctx, 0, nil, nil, 1000)
//	for {
//	  pairs, err := stream.Next(ctx)
//	  if err == io.EOF {
//	    break
//	  }
//	  ...
//	}
//
// Server side failures are returned as *StatusError carrying the wire status.
package client
