package client

import (
	"context"
	"fmt"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
	"github.com/ulikoehler/YakDB-sub001/rpc/serializer"
	"github.com/ulikoehler/YakDB-sub001/rpc/transport"
)

var (
	Logger = logger.GetLogger("client")
)

// StatusError is returned for a response with an error status
type StatusError struct {
	Op      common.Opcode
	Status  common.Status
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with %s: %s", e.Op, e.Status, e.Message)
}

// invokeRPCRequest is a helper function used by all client methods to send requests
// It takes a request, a transport layer and a serializer as parameters
// It returns the response and an error if any occurs
// This method also checks if the response is an error response and if the opcode of the response is the expected one
func invokeRPCRequest(ctx context.Context, req common.Request, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Response, error) {
	// Send the request
	respFrames, err := transport.Send(ctx, serializer.EncodeRequest(req))
	if err != nil {
		return nil, err
	}

	// Decode the response
	resp, err := serializer.DecodeResponse(respFrames)
	if err != nil {
		return nil, fmt.Errorf("invalid %s response: %w", req.Opcode(), err)
	}

	return resp, checkResponse(req.Opcode(), resp)
}

// checkResponse checks the status and the opcode of a response
func checkResponse(op common.Opcode, resp *common.Response) error {
	if resp.Status.IsError() {
		return &StatusError{Op: resp.Op, Status: resp.Status, Message: resp.Err}
	}
	if resp.Op != op {
		return fmt.Errorf("unexpected response opcode %s, expected %s", resp.Op, op)
	}
	return nil
}
