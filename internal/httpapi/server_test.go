package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/nortide/api/order-idempotency-service/internal/apperrors"
	"gitlab.com/nortide/api/order-idempotency-service/internal/config"
	"gitlab.com/nortide/api/order-idempotency-service/internal/model"
	storagemock "gitlab.com/nortide/api/order-idempotency-service/internal/storage/mock"
	"gitlab.com/nortide/api/order-idempotency-service/internal/usecase"
)

// fakePublisher captures published messages.
type fakePublisher struct {
	published  []string
	publishErr error
}

func (f *fakePublisher) SetupStream(context.Context, *nats.StreamConfig) error { return nil }
func (f *fakePublisher) SetupConsumer(context.Context, string, *nats.ConsumerConfig) error {
	return nil
}
func (f *fakePublisher) SubscribePull(string, string, string) (*nats.Subscription, error) {
	return nil, nil
}
func (f *fakePublisher) Publish(subject string, data []byte, _ map[string]string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, string(data))
	return nil
}
func (f *fakePublisher) Close()                  {}
func (f *fakePublisher) NatsConn() *nats.Conn    { return nil }

type serverFixture struct {
	server      *Server
	records     *storagemock.RecordRepoMock
	deadLetters *storagemock.DeadLetterRepoMock
	duplicates  *storagemock.DuplicateRepoMock
	orders      *storagemock.OrderRepoMock
	publisher   *fakePublisher
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.Port = 8080
	cfg.NATS.Subject = "v1.orders"
	cfg.Processing.ConsumerName = "order-processor"

	f := &serverFixture{
		records:     new(storagemock.RecordRepoMock),
		deadLetters: new(storagemock.DeadLetterRepoMock),
		duplicates:  new(storagemock.DuplicateRepoMock),
		orders:      new(storagemock.OrderRepoMock),
		publisher:   &fakePublisher{},
	}

	tracker := usecase.NewAttemptTracker(3)
	manager := usecase.NewDeadLetterManager(f.deadLetters, f.records, tracker)
	stats := usecase.NewStatsService(f.records, f.duplicates, f.orders, f.deadLetters, cfg.Processing.ConsumerName)

	f.server = NewServer(cfg, zaptest.NewLogger(t), f.orders, manager, stats, f.publisher, nil)
	return f
}

func (f *serverFixture) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestReadyEndpoint_NotReady(t *testing.T) {
	f := newServerFixture(t)
	f.server.readiness = func(context.Context) error { return errors.New("db down") }

	rec := f.do(t, http.MethodGet, "/ready", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPublishOrder_Accepted(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/orders", publishOrderRequest{
		MessageID:    "msg-http-1",
		CustomerName: "Grace Hopper",
		Amount:       99.95,
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.publisher.published, 1)
	assert.Contains(t, f.publisher.published[0], `"msg-http-1"`)

	var resp publishOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "msg-http-1", resp.MessageID)
	assert.Equal(t, "v1.orders", resp.Subject)
}

func TestPublishOrder_GeneratesMessageID(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/orders", publishOrderRequest{
		CustomerName: "Grace Hopper",
		Amount:       10,
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp publishOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	_, err := uuid.Parse(resp.MessageID)
	assert.NoError(t, err)
}

func TestPublishOrder_Validation(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/orders", publishOrderRequest{Amount: 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/orders", publishOrderRequest{CustomerName: "X", Amount: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, f.publisher.published)
}

func TestPublishOrder_BrokerDown(t *testing.T) {
	f := newServerFixture(t)
	f.publisher.publishErr = errors.New("nats: connection closed")

	rec := f.do(t, http.MethodPost, "/api/orders", publishOrderRequest{
		CustomerName: "Grace Hopper",
		Amount:       10,
	})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestListOrders(t *testing.T) {
	f := newServerFixture(t)
	f.orders.On("List", mock.Anything).Return([]model.Order{
		{ID: uuid.New(), CustomerName: "Ada", Amount: 10, Status: model.OrderStatusCompleted},
	}, nil)

	rec := f.do(t, http.MethodGet, "/api/orders", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Ada"`)
	f.orders.AssertExpectations(t)
}

func TestDeadLetterQueue_MessagesAndStats(t *testing.T) {
	f := newServerFixture(t)
	pending := []model.DeadLetterEntry{{
		ID:                uuid.New(),
		OriginalMessageID: "msg-dl-1",
		ConsumerName:      "order-processor",
		Status:            model.DeadLetterStatusPending,
		FailureTimestamp:  time.Now().UTC(),
	}}
	f.deadLetters.On("List", mock.Anything, model.DeadLetterStatus("")).Return(pending, nil)
	f.deadLetters.On("Stats", mock.Anything).Return(model.DeadLetterStats{
		TotalMessages:   1,
		PendingMessages: 1,
	}, nil)

	rec := f.do(t, http.MethodGet, "/api/dead-letter-queue", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Messages []model.DeadLetterEntry `json:"messages"`
		Stats    model.DeadLetterStats   `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "msg-dl-1", body.Messages[0].OriginalMessageID)
	assert.Equal(t, int64(1), body.Stats.PendingMessages)
	f.deadLetters.AssertExpectations(t)
}

func TestDeadLetterQueue_InvalidStatusFilter(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/dead-letter-queue?status=bogus", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid status filter")
	f.deadLetters.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestRetry_InvalidID(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/dead-letter-queue/not-a-uuid/retry", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetry_NotFound(t *testing.T) {
	f := newServerFixture(t)
	id := uuid.New()
	f.deadLetters.On("Resolve", mock.Anything, id, mock.Anything).Return(nil, apperrors.ErrNotFound)

	rec := f.do(t, http.MethodPost, "/api/dead-letter-queue/"+id.String()+"/retry", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	f.deadLetters.AssertExpectations(t)
}

func TestRetry_Success(t *testing.T) {
	f := newServerFixture(t)
	id := uuid.New()
	resolved := &model.DeadLetterEntry{
		ID:                id,
		OriginalMessageID: "msg-retry-http",
		ConsumerName:      "order-processor",
		Status:            model.DeadLetterStatusResolved,
		ResolutionNotes:   "Ready for retry",
	}
	f.deadLetters.On("Resolve", mock.Anything, id, mock.Anything).Return(resolved, nil)
	f.records.On("Reset", mock.Anything, "msg-retry-http", "order-processor").Return(nil)

	rec := f.do(t, http.MethodPost, "/api/dead-letter-queue/"+id.String()+"/retry", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"resolved"`)
	f.deadLetters.AssertExpectations(t)
	f.records.AssertExpectations(t)
}

func TestMarkFailed_Success(t *testing.T) {
	f := newServerFixture(t)
	id := uuid.New()
	failed := &model.DeadLetterEntry{
		ID:                id,
		OriginalMessageID: "msg-fail-http",
		ConsumerName:      "order-processor",
		Status:            model.DeadLetterStatusFailed,
		ResolutionNotes:   "bad reference data",
	}
	f.deadLetters.On("MarkFailed", mock.Anything, id, "bad reference data").Return(failed, nil)

	rec := f.do(t, http.MethodPost, "/api/dead-letter-queue/"+id.String()+"/fail",
		map[string]string{"notes": "bad reference data"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failed"`)
	f.deadLetters.AssertExpectations(t)
}

func TestMarkFailed_DefaultNotes(t *testing.T) {
	f := newServerFixture(t)
	id := uuid.New()
	failed := &model.DeadLetterEntry{
		ID:     id,
		Status: model.DeadLetterStatusFailed,
	}
	f.deadLetters.On("MarkFailed", mock.Anything, id, "Written off by operator").Return(failed, nil)

	rec := f.do(t, http.MethodPost, "/api/dead-letter-queue/"+id.String()+"/fail", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	f.deadLetters.AssertExpectations(t)
}

func TestStatistics(t *testing.T) {
	f := newServerFixture(t)
	f.records.On("CountProcessed", mock.Anything, "order-processor").Return(int64(7), nil)
	f.records.On("OldestClaimAge", mock.Anything, "order-processor").Return(nil, nil)
	f.duplicates.On("Count", mock.Anything, "order-processor").Return(int64(3), nil)
	f.orders.On("Count", mock.Anything).Return(int64(7), nil)
	f.deadLetters.On("Stats", mock.Anything).Return(model.DeadLetterStats{TotalMessages: 2, PendingMessages: 1, ResolvedMessages: 1}, nil)

	rec := f.do(t, http.MethodGet, "/api/statistics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var snapshot model.ProcessingStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, int64(7), snapshot.TotalProcessed)
	assert.Equal(t, int64(3), snapshot.DuplicatesDetected)
	assert.Equal(t, int64(1), snapshot.DeadLetter.PendingMessages)
}

func TestStatistics_StorageUnavailable(t *testing.T) {
	f := newServerFixture(t)
	f.records.On("CountProcessed", mock.Anything, "order-processor").
		Return(int64(0), apperrors.ErrDatabase)

	rec := f.do(t, http.MethodGet, "/api/statistics", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "storage unavailable")
}
