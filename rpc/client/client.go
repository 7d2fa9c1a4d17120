package client

import (
	"context"
	"fmt"

	"github.com/ulikoehler/YakDB-sub001/lib/db"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
	"github.com/ulikoehler/YakDB-sub001/rpc/serializer"
	"github.com/ulikoehler/YakDB-sub001/rpc/transport"
)

// NewRPCClient creates a new client
// The function takes a config, a transport and a serializer as parameters
// It connects the transport and returns the client
func NewRPCClient(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (IYakClient, error) {

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &rpcClient{
		config:     config,
		transport:  transport,
		serializer: serializer,
	}, nil
}

type rpcClient struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IYakClient)
// --------------------------------------------------------------------------

func (c *rpcClient) ServerInfo(ctx context.Context) (db.Feature, string, error) {
	resp, err := c.invoke(ctx, common.NewServerInfoRequest())
	if err != nil {
		return 0, "", err
	}
	return serializer.ParseServerInfo(resp)
}

func (c *rpcClient) OpenTable(ctx context.Context, table uint32, config db.TableConfig) error {
	_, err := c.invoke(ctx, common.NewTableOpenRequest(table, config))
	return err
}

func (c *rpcClient) CloseTable(ctx context.Context, table uint32) error {
	_, err := c.invoke(ctx, common.NewTableCloseRequest(table))
	return err
}

func (c *rpcClient) TableInfo(ctx context.Context, table uint32) ([][2]string, error) {
	resp, err := c.invoke(ctx, common.NewTableInfoRequest(table))
	if err != nil {
		return nil, err
	}
	return serializer.ParseTableInfo(resp)
}

func (c *rpcClient) Compact(ctx context.Context, table uint32, start, end []byte) error {
	_, err := c.invoke(ctx, common.NewCompactRequest(table, start, end))
	return err
}

func (c *rpcClient) Truncate(ctx context.Context, table uint32) error {
	_, err := c.invoke(ctx, common.NewTruncateRequest(table))
	return err
}

func (c *rpcClient) Read(ctx context.Context, table uint32, keys ...[]byte) ([]common.Result, error) {
	resp, err := c.invoke(ctx, common.NewReadRequest(table, keys...))
	if err != nil {
		return nil, err
	}
	return results(resp, len(keys), serializer.DecodeResult)
}

func (c *rpcClient) Exists(ctx context.Context, table uint32, keys ...[]byte) ([]common.Result, error) {
	resp, err := c.invoke(ctx, common.NewExistsRequest(table, keys...))
	if err != nil {
		return nil, err
	}
	return results(resp, len(keys), serializer.DecodeExistsResult)
}

func (c *rpcClient) Count(ctx context.Context, table uint32, start, end []byte) (uint64, error) {
	resp, err := c.invoke(ctx, common.NewCountRequest(table, start, end))
	if err != nil {
		return 0, err
	}
	if len(resp.Frames) != 1 {
		return 0, fmt.Errorf("count response has %d frames", len(resp.Frames))
	}
	return serializer.ParseUint64(resp.Frames[0])
}

func (c *rpcClient) Scan(ctx context.Context, table uint32, start, end []byte, chunkSize uint32) (*ScanStream, error) {
	return c.openScan(ctx, common.NewScanRequest(table, start, end, chunkSize))
}

func (c *rpcClient) LimitedScan(ctx context.Context, table uint32, start []byte, limit uint64, chunkSize uint32) (*ScanStream, error) {
	return c.openScan(ctx, common.NewLimitedScanRequest(table, start, limit, chunkSize))
}

func (c *rpcClient) Put(ctx context.Context, table uint32, durability db.Durability, pairs ...db.KeyValue) error {
	_, err := c.invoke(ctx, common.NewPutRequest(table, common.FlagsFor(durability), pairs...))
	return err
}

func (c *rpcClient) Delete(ctx context.Context, table uint32, durability db.Durability, keys ...[]byte) error {
	_, err := c.invoke(ctx, common.NewDeleteRequest(table, common.FlagsFor(durability), keys...))
	return err
}

func (c *rpcClient) DeleteRange(ctx context.Context, table uint32, durability db.Durability, start, end []byte) error {
	_, err := c.invoke(ctx, common.NewDeleteRangeRequest(table, common.FlagsFor(durability), start, end))
	return err
}

func (c *rpcClient) Close() error {
	return c.transport.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (c *rpcClient) invoke(ctx context.Context, req common.Request) (*common.Response, error) {
	return invokeRPCRequest(ctx, req, c.transport, c.serializer)
}

// results decodes one result frame per key
func results(resp *common.Response, n int, decode func([]byte) (common.Result, error)) ([]common.Result, error) {
	if len(resp.Frames) != n {
		return nil, fmt.Errorf("%s response has %d results for %d keys", resp.Op, len(resp.Frames), n)
	}
	out := make([]common.Result, n)
	for i, frame := range resp.Frames {
		r, err := decode(frame)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}
