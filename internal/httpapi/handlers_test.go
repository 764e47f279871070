package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/mock/gomock"
	logger_lib "github.com/s21platform/logger-lib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-chi/chi/v5"

	"github.com/sinkr-io/sinkr/internal/coordinator"
	"github.com/sinkr-io/sinkr/internal/loadstore"
	"github.com/sinkr-io/sinkr/internal/logging"
	"github.com/sinkr-io/sinkr/internal/metrics"
	"github.com/sinkr-io/sinkr/internal/model"
	"github.com/sinkr-io/sinkr/internal/pkg/ticket"
	"github.com/sinkr-io/sinkr/internal/storetest"
	"github.com/sinkr-io/sinkr/internal/wire"
)

func newTestServer(t *testing.T) (*Server, *storetest.Store, logger_lib.LoggerInterface) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockLogger := logger_lib.NewMockLoggerInterface(ctrl)
	mockLogger.EXPECT().Error(gomock.Any()).AnyTimes()
	mockLogger.EXPECT().AddFuncName(gomock.Any()).AnyTimes()

	st := storetest.New()
	c := coordinator.New(st, loadstore.New(nil), &metrics.Metrics{}, 1000)
	tickets := ticket.New("test-signing-key")
	return New(c, "shh-secret", tickets, mockLogger), st, mockLogger
}

// newRoutedRequest builds a request with appId already injected into a chi route
// context, the same way the teacher's handler_test.go drives a handler directly
// without routing it through a full mux, plus the request-scoped logger
// logging.Middleware would otherwise have stashed via PublicRouter.
func newRoutedRequest(t *testing.T, logger logger_lib.LoggerInterface, method, target string, body io.Reader, appID string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, body)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("appId", appID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = logging.WithLogger(ctx, logger)
	return req.WithContext(ctx)
}

func TestHandleSourceHTTPUnknownAppIs404(t *testing.T) {
	s, _, logger := newTestServer(t)

	req := newRoutedRequest(t, logger, "POST", "/missing", nil, "missing")
	rec := httptest.NewRecorder()
	s.handleSourceHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSourceHTTPBadBearerIs401(t *testing.T) {
	s, st, logger := newTestServer(t)
	st.Apps["app1"] = &model.App{ID: "app1", Enabled: true, SecretKey: "correct-secret"}

	req := newRoutedRequest(t, logger, "POST", "/app1", bytes.NewReader([]byte("{}")), "app1")
	req.Header.Set("Authorization", "Bearer wrong-secret")
	rec := httptest.NewRecorder()
	s.handleSourceHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleSourceHTTPMalformedBodyIs400(t *testing.T) {
	s, st, logger := newTestServer(t)
	st.Apps["app1"] = &model.App{ID: "app1", Enabled: true, SecretKey: "correct-secret"}

	req := newRoutedRequest(t, logger, "POST", "/app1", bytes.NewReader([]byte("not json")), "app1")
	req.Header.Set("Authorization", "Bearer correct-secret")
	rec := httptest.NewRecorder()
	s.handleSourceHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSourceHTTPSuccessfulChannelCreate(t *testing.T) {
	s, st, logger := newTestServer(t)
	st.Apps["app1"] = &model.App{ID: "app1", Enabled: true, SecretKey: "correct-secret"}

	reqBody := wire.ChannelCreateRequest{Name: "room", AuthMode: model.AuthPublic}
	reqJSON, err := json.Marshal(reqBody)
	require.NoError(t, err)
	envJSON, err := json.Marshal(wire.Envelope{ID: "env-1", Data: wire.EnvelopeData{Route: wire.RouteChannelCreate, Request: reqJSON}})
	require.NoError(t, err)

	req := newRoutedRequest(t, logger, "POST", "/app1", bytes.NewReader(envJSON), "app1")
	req.Header.Set("Authorization", "Bearer correct-secret")
	rec := httptest.NewRecorder()
	s.handleSourceHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var reply wire.Reply
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reply))
	assert.Equal(t, "env-1", reply.ID)

	var resp wire.ChannelCreateResponse
	require.NoError(t, json.Unmarshal(reply.Response, &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.ChannelID)
}

func TestHandleSourceHTTPDomainFailureIsStill200(t *testing.T) {
	s, st, logger := newTestServer(t)
	st.Apps["app1"] = &model.App{ID: "app1", Enabled: true, SecretKey: "correct-secret"}

	reqBody := wire.ChannelDeleteRequest{ChannelID: "does-not-exist"}
	reqJSON, err := json.Marshal(reqBody)
	require.NoError(t, err)
	envJSON, err := json.Marshal(wire.Envelope{ID: "env-2", Data: wire.EnvelopeData{Route: wire.RouteChannelDelete, Request: reqJSON}})
	require.NoError(t, err)

	req := newRoutedRequest(t, logger, "POST", "/app1", bytes.NewReader(envJSON), "app1")
	req.Header.Set("Authorization", "Bearer correct-secret")
	rec := httptest.NewRecorder()
	s.handleSourceHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var reply wire.Reply
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reply))
	var resp wire.ErrorResponse
	require.NoError(t, json.Unmarshal(reply.Response, &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, wire.ErrChannelNotFound.Error(), resp.Error)
}
