package server

import (
	"errors"

	"github.com/ulikoehler/YakDB-sub001/lib/db"
	"github.com/ulikoehler/YakDB-sub001/lib/lifecycle"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
)

// statusOf maps an error to the response status sent to the client
func statusOf(err error) common.Status {
	var decodeErr *common.DecodeError
	switch {
	case err == nil:
		return common.StatusOK
	case errors.As(err, &decodeErr):
		return common.StatusProtocolError
	case errors.Is(err, lifecycle.ErrDraining):
		return common.StatusShuttingDown
	}

	switch db.CodeOf(err) {
	case db.ErrCodeInvalidArgument:
		return common.StatusProtocolError
	case db.ErrCodeTableBusy:
		return common.StatusTableBusy
	case db.ErrCodeEngineOpen:
		return common.StatusEngineOpen
	case db.ErrCodeEngineIO:
		return common.StatusEngineIO
	case db.ErrCodeTableClosed:
		// handles are only closed underneath a request while shutting down
		return common.StatusShuttingDown
	default:
		return common.StatusInternal
	}
}

// errorResponse creates the response of a failed request
func errorResponse(op common.Opcode, err error) *common.Response {
	return common.NewErrorResponse(op, statusOf(err), err.Error())
}
