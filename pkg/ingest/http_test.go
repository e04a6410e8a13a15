package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lsst/qserv-replica/pkg/config"
	"github.com/lsst/qserv-replica/pkg/ctlerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMuxRejectsWrongMethod(t *testing.T) {
	svc := newTestService(t)
	mux := NewMux(svc)

	req := httptest.NewRequest(http.MethodPatch, "/ingest/v1/database", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Allow"))
}

func TestHandleAddDatabaseRoundTrip(t *testing.T) {
	svc := newTestService(t)
	mux := NewMux(svc)

	body, err := json.Marshal(AddDatabaseRequest{Name: "db1", NumStripes: 10, NumSubStripes: 2, Overlap: 0.01})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/ingest/v1/database", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp successResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	_, err = svc.Store.Database("db1")
	assert.NoError(t, err)
}

func TestHandleAddDatabaseMalformedBodyReturnsBadRequest(t *testing.T) {
	svc := newTestService(t)
	mux := NewMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/ingest/v1/database", bytes.NewReader([]byte(`{"unknownField": 1}`)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "InvalidArgument", resp.ErrorCode)
	assert.False(t, resp.Success)
}

func TestHandleDeleteDatabaseUnknownReturnsNotFound(t *testing.T) {
	svc := newTestService(t)
	mux := NewMux(svc)

	req := httptest.NewRequest(http.MethodDelete, "/ingest/v1/database?database=nope&admin=true", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleBeginAndEndTransaction(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.AddDatabase(context.Background(), AddDatabaseRequest{Name: "db1", NumStripes: 10, NumSubStripes: 2, Overlap: 0.01}))
	mux := NewMux(svc)

	body, err := json.Marshal(beginTransactionRequest{Database: "db1"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/ingest/v1/trans", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var txn config.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txn))
	assert.Equal(t, config.TransStarted, txn.State)

	endReq := httptest.NewRequest(http.MethodPut, "/ingest/v1/trans?id=1", nil)
	endRec := httptest.NewRecorder()
	mux.ServeHTTP(endRec, endReq)
	assert.Equal(t, http.StatusOK, endRec.Code)
}

func TestHandleEndTransactionMalformedIDReturnsBadRequest(t *testing.T) {
	svc := newTestService(t)
	mux := NewMux(svc)

	req := httptest.NewRequest(http.MethodPut, "/ingest/v1/trans?id=not-a-number", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBuildEmptyChunksList(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.AddDatabase(context.Background(), AddDatabaseRequest{Name: "db1", NumStripes: 1, NumSubStripes: 1, Overlap: 0.01}))
	mux := NewMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/ingest/v1/empty-chunks-list?database=db1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Chunks []int32 `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, []int32{0, 1}, out.Chunks)
}

func TestStatusForKind(t *testing.T) {
	cases := map[string]int{
		"InvalidArgument":    http.StatusBadRequest,
		"UnknownWorker":      http.StatusNotFound,
		"UnknownDatabase":    http.StatusNotFound,
		"AlreadyExists":      http.StatusConflict,
		"PreconditionFailed": http.StatusPreconditionFailed,
		"WorkerDisabled":     http.StatusPreconditionFailed,
		"Timeout":            http.StatusGatewayTimeout,
		"Cancelled":          http.StatusRequestTimeout,
		"Internal":           http.StatusInternalServerError,
		"":                   http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusForKind(ctlerror.Kind(kind)), "kind %q", kind)
	}
}
