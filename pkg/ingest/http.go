package ingest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/lsst/qserv-replica/pkg/ctlerror"
)

// NewMux builds the ingest HTTP surface. The corpus this
// repository is grounded on never imports a third-party router (no
// complete example repo depends on gorilla/mux, go-chi or gin-gonic),
// so this mirrors the simplest idiom available: one ServeMux with
// method-checked handlers.
func NewMux(svc *Service) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ingest/v1/database", methodSwitch(map[string]http.HandlerFunc{
		http.MethodPost:   svc.handleAddDatabase,
		http.MethodPut:    svc.handlePublishDatabase,
		http.MethodDelete: svc.handleDeleteDatabase,
	}))
	mux.HandleFunc("/ingest/v1/table", methodSwitch(map[string]http.HandlerFunc{
		http.MethodPost:   svc.handleAddTable,
		http.MethodDelete: svc.handleDeleteTable,
	}))
	mux.HandleFunc("/ingest/v1/trans", methodSwitch(map[string]http.HandlerFunc{
		http.MethodPost: svc.handleBeginTransaction,
		http.MethodPut:  svc.handleEndTransaction,
	}))
	mux.HandleFunc("/ingest/v1/chunk", methodSwitch(map[string]http.HandlerFunc{
		http.MethodPost: svc.handleAddChunk,
	}))
	mux.HandleFunc("/ingest/v1/empty-chunks-list", methodSwitch(map[string]http.HandlerFunc{
		http.MethodGet: svc.handleBuildEmptyChunksList,
	}))
	return mux
}

func methodSwitch(byMethod map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h, ok := byMethod[r.Method]; ok {
			h(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(byMethod))
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func allowedMethods(byMethod map[string]http.HandlerFunc) string {
	var methods []string
	for m := range byMethod {
		methods = append(methods, m)
	}
	return strings.Join(methods, ", ")
}

// errorResponse is the uniform failure envelope: error_code
// is ctlerror.Kind, error is the human-readable reason.
type errorResponse struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code"`
	Error     string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := ctlerror.KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForKind(kind))
	_ = json.NewEncoder(w).Encode(errorResponse{ErrorCode: string(kind), Error: err.Error()})
}

func statusForKind(kind ctlerror.Kind) int {
	switch kind {
	case ctlerror.InvalidArgument:
		return http.StatusBadRequest
	case ctlerror.UnknownWorker, ctlerror.UnknownDatabase, ctlerror.UnknownFamily, ctlerror.UnknownTable:
		return http.StatusNotFound
	case ctlerror.AlreadyExists:
		return http.StatusConflict
	case ctlerror.PreconditionFailed, ctlerror.WorkerDisabled, ctlerror.InUse:
		return http.StatusPreconditionFailed
	case ctlerror.Timeout:
		return http.StatusGatewayTimeout
	case ctlerror.Cancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return ctlerror.Wrap(ctlerror.InvalidArgument, err, "malformed request body")
	}
	return nil
}

type successResponse struct {
	Success bool `json:"success"`
}

func (s *Service) handleAddDatabase(w http.ResponseWriter, r *http.Request) {
	var req AddDatabaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.AddDatabase(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, successResponse{Success: true})
}

func (s *Service) handlePublishDatabase(w http.ResponseWriter, r *http.Request) {
	var req PublishDatabaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.PublishDatabase(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, successResponse{Success: true})
}

func (s *Service) handleDeleteDatabase(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("database")
	admin := r.URL.Query().Get("admin") == "true"
	if err := s.DeleteDatabase(r.Context(), DeleteDatabaseRequest{Name: name, Admin: admin}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, successResponse{Success: true})
}

func (s *Service) handleAddTable(w http.ResponseWriter, r *http.Request) {
	var req AddTableRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.AddTable(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, successResponse{Success: true})
}

func (s *Service) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	database := r.URL.Query().Get("database")
	name := r.URL.Query().Get("table")
	if err := s.DeleteTable(r.Context(), database, name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, successResponse{Success: true})
}

type beginTransactionRequest struct {
	Database string `json:"database"`
}

func (s *Service) handleBeginTransaction(w http.ResponseWriter, r *http.Request) {
	var req beginTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	txn, err := s.BeginTransaction(r.Context(), req.Database)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, txn)
}

func (s *Service) handleEndTransaction(w http.ResponseWriter, r *http.Request) {
	idStr := r.URL.Query().Get("id")
	id, err := strconv.ParseInt(idStr, 10, 32)
	if err != nil {
		writeError(w, ctlerror.Wrap(ctlerror.InvalidArgument, err, "malformed transaction id %q", idStr))
		return
	}
	abort := r.URL.Query().Get("abort") == "true"
	txn, err := s.EndTransaction(r.Context(), int32(id), abort)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, txn)
}

func (s *Service) handleAddChunk(w http.ResponseWriter, r *http.Request) {
	var req AddChunkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := s.AddChunk(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

func (s *Service) handleBuildEmptyChunksList(w http.ResponseWriter, r *http.Request) {
	database := r.URL.Query().Get("database")
	chunks, err := s.BuildEmptyChunksList(r.Context(), database)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, struct {
		Chunks []int32 `json:"chunks"`
	}{Chunks: chunks})
}
