package httpapi

type Status string

const (
	StatusOK      Status = "OK"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Response is the JSON body of every non-value response
type Response struct {
	Status Status  `json:"status,omitempty"`
	Count  *uint64 `json:"count,omitempty"`
	Error  string  `json:"error,omitempty"`
}

func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

func NewSuccessResponse() Response {
	return Response{Status: StatusSuccess}
}

func NewCountResponse(n uint64) Response {
	return Response{Status: StatusSuccess, Count: &n}
}

func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}

// ServerInfo is the body of GET /api/info
type ServerInfo struct {
	Version     string   `json:"version"`
	Features    uint64   `json:"features"`
	OpenTables  []uint32 `json:"openTables"`
	LiveTasks   int      `json:"liveTasks"`
	ActiveScans int      `json:"activeScans"`
	Workers     int      `json:"workers"`
}

// TableParam is one name/value pair of GET /api/tables/{table}/info
type TableParam struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
