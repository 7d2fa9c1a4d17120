package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/ulikoehler/YakDB-sub001/lib/db"
	"github.com/ulikoehler/YakDB-sub001/lib/lifecycle"
	"github.com/ulikoehler/YakDB-sub001/lib/tablespace"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
)

var Logger = logger.GetLogger("http")

const (
	contentTypeJSON   = "application/json"
	contentTypeBinary = "application/octet-stream"
)

// Options are the server components the front end reads and writes through
type Options struct {
	Tables   *tablespace.Tablespace
	Registry *lifecycle.Registry
	// Metrics writes the metrics in Prometheus text format
	Metrics func(w io.Writer)
	// Info returns the server summary
	Info func() ServerInfo
	// MaxValueBytes bounds PUT bodies (0 = common.DefaultMaxMessageBytes)
	MaxValueBytes int64
}

type api struct {
	Options
}

// NewRouter builds the chi router of the front end
func NewRouter(opts Options) http.Handler {
	if opts.MaxValueBytes <= 0 {
		opts.MaxValueBytes = common.DefaultMaxMessageBytes
	}
	a := &api{Options: opts}

	r := chi.NewRouter()
	r.Use(logged, tracked(opts.Registry))

	r.Get("/health", a.handleHealth)
	r.Get("/metrics", a.handleMetrics)
	r.Get("/api/info", a.handleInfo)

	r.Route("/api/tables/{table}", func(r chi.Router) {
		r.Get("/info", a.handleTableInfo)
		r.Get("/count", a.handleCount)
		r.Get("/keys/{key}", a.handleGet)
		r.Put("/keys/{key}", a.handlePut)
		r.Delete("/keys/{key}", a.handleDelete)
	})
	return r
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NewOKResponse())
}

func (a *api) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if a.Metrics != nil {
		a.Metrics(w)
	}
}

func (a *api) handleInfo(w http.ResponseWriter, _ *http.Request) {
	if a.Info == nil {
		writeJSON(w, http.StatusNotFound, NewErrorResponse("no server info"))
		return
	}
	writeJSON(w, http.StatusOK, a.Info())
}

func (a *api) handleTableInfo(w http.ResponseWriter, r *http.Request) {
	index, ok := tableParam(w, r)
	if !ok {
		return
	}
	info, err := a.Tables.TableInfo(index)
	if err != nil {
		writeError(w, err)
		return
	}
	params := make([]TableParam, len(info))
	for i, p := range info {
		params[i] = TableParam{Name: p[0], Value: p[1]}
	}
	writeJSON(w, http.StatusOK, params)
}

func (a *api) handleCount(w http.ResponseWriter, r *http.Request) {
	index, ok := tableParam(w, r)
	if !ok {
		return
	}
	start := []byte(r.URL.Query().Get("start"))
	end := []byte(r.URL.Query().Get("end"))

	a.withTable(w, index, func(t *db.Table) {
		n, err := t.Count(start, end)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, NewCountResponse(n))
	})
}

func (a *api) handleGet(w http.ResponseWriter, r *http.Request) {
	index, key, ok := keyParams(w, r)
	if !ok {
		return
	}
	a.withTable(w, index, func(t *db.Table) {
		value, found, err := t.Get(key)
		if err != nil {
			writeError(w, err)
			return
		}
		if !found {
			writeJSON(w, http.StatusNotFound, NewErrorResponse("Key not found"))
			return
		}
		w.Header().Set("Content-Type", contentTypeBinary)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(value); err != nil {
			Logger.Warningf("Failed to write value: %v", err)
		}
	})
}

func (a *api) handlePut(w http.ResponseWriter, r *http.Request) {
	index, key, ok := keyParams(w, r)
	if !ok {
		return
	}
	durability, ok := durabilityParam(w, r)
	if !ok {
		return
	}
	value, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.MaxValueBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse(fmt.Sprintf("Failed to read request body: %v", err)))
		return
	}

	a.withTable(w, index, func(t *db.Table) {
		if err := t.Put([]db.KeyValue{{Key: key, Value: value}}, durability); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, NewSuccessResponse())
	})
}

func (a *api) handleDelete(w http.ResponseWriter, r *http.Request) {
	index, key, ok := keyParams(w, r)
	if !ok {
		return
	}
	durability, ok := durabilityParam(w, r)
	if !ok {
		return
	}
	a.withTable(w, index, func(t *db.Table) {
		if err := t.Delete([][]byte{key}, durability); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, NewSuccessResponse())
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (a *api) withTable(w http.ResponseWriter, index uint32, fn func(t *db.Table)) {
	t, err := a.Tables.GetTable(index)
	if err != nil {
		writeError(w, err)
		return
	}
	defer t.Release()
	fn(t)
}

func tableParam(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	index, err := strconv.ParseUint(chi.URLParam(r, "table"), 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid table index"))
		return 0, false
	}
	return uint32(index), true
}

func keyParams(w http.ResponseWriter, r *http.Request) (uint32, []byte, bool) {
	index, ok := tableParam(w, r)
	if !ok {
		return 0, nil, false
	}
	// chi matches on the raw path when the request carries escaped bytes
	key := chi.URLParam(r, "key")
	var err error
	if r.URL.RawPath != "" {
		key, err = url.PathUnescape(key)
	}
	if err != nil || key == "" {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid key"))
		return 0, nil, false
	}
	return index, []byte(key), true
}

func durabilityParam(w http.ResponseWriter, r *http.Request) (db.Durability, bool) {
	switch r.URL.Query().Get("sync") {
	case "":
		return db.DurabilityBuffered, true
	case "part":
		return db.DurabilityGroupCommit, true
	case "full":
		return db.DurabilityFsync, true
	default:
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("sync must be part or full"))
		return 0, false
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		Logger.Warningf("Error encoding response: %v", err)
	}
}

// writeError maps a table error to an HTTP status
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, lifecycle.ErrDraining):
		status = http.StatusServiceUnavailable
	case db.IsCode(err, db.ErrCodeInvalidArgument):
		status = http.StatusBadRequest
	case db.IsCode(err, db.ErrCodeTableBusy):
		status = http.StatusConflict
	case db.IsCode(err, db.ErrCodeTableClosed):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, NewErrorResponse(err.Error()))
}
