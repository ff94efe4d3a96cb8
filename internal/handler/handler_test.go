package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notify-mail-relay-go/internal/config"
	"notify-mail-relay-go/internal/db"
	"notify-mail-relay-go/internal/events"
	"notify-mail-relay-go/internal/filter"
	"notify-mail-relay-go/internal/metrics"
	"notify-mail-relay-go/internal/model"
	"notify-mail-relay-go/internal/repository"
	"notify-mail-relay-go/internal/service"
	"notify-mail-relay-go/internal/service/supervisor"
	"notify-mail-relay-go/internal/store"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent int
}

func (r *recordingTransport) Send(context.Context, model.EmailConfig, []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent++
	return nil
}

type testServer struct {
	router     *gin.Engine
	configs    *store.ConfigStore
	history    *store.HistoryStore
	pipeline   *service.Pipeline
	supervisor *supervisor.Supervisor
	bus        events.Bus
	transport  *recordingTransport
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.Init(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "relay.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(database) })

	repo := repository.New(database)
	configs, err := store.NewConfigStore(repo, nil)
	require.NoError(t, err)
	history, err := store.NewHistoryStore(repo, store.DefaultHistoryCapacity)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	bus := events.NewBus()
	transport := &recordingTransport{}
	deliverer := service.NewDeliverer(configs, history, transport, bus, m, config.DeliveryConfig{
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
	})
	pipeline := service.NewPipeline(context.Background(), configs, history, filter.New("notify-mail-relay", nil, 0), deliverer, bus, m)
	sup := supervisor.New(config.SupervisorConfig{Interval: time.Hour, SettleDelay: time.Hour}, pipeline, configs, m)
	t.Cleanup(func() { _ = sup.Stop() })

	h := NewHandlers(repo, configs, history, pipeline, sup, bus, reg)
	router := gin.New()
	h.SetupRoutes(router)

	return &testServer{
		router:     router,
		configs:    configs,
		history:    history,
		pipeline:   pipeline,
		supervisor: sup,
		bus:        bus,
		transport:  transport,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func validConfigRequest() EmailConfigRequest {
	return EmailConfigRequest{
		SMTPServer:     "smtp.example.com",
		SMTPPort:       "465",
		Encryption:     model.EncryptionSSL,
		SenderEmail:    "sender@example.com",
		SenderPassword: "secret",
		RecipientEmail: "inbox@example.org",
	}
}

func (s *testServer) waitDeliveries(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.pipeline.Wait(ctx))
}

func TestHealthCheck(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Database)
	assert.Equal(t, "stopped", resp.Pipeline)
	assert.Equal(t, "degraded", resp.Details["forwarding"])
}

func TestEmailConfigEndpoints(t *testing.T) {
	s := setupTestServer(t)

	bad := validConfigRequest()
	bad.RecipientEmail = "not-an-address"
	w := s.do(t, http.MethodPut, "/api/v1/config/email", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/config/email", validConfigRequest())
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/config/email", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Config model.EmailConfig `json:"config"`
		Valid  bool              `json:"valid"`
	}
	decode(t, w, &got)
	assert.True(t, got.Valid)
	assert.Equal(t, "********", got.Config.SenderPassword)
	assert.Equal(t, "smtp.example.com", got.Config.SMTPServer)

	// An empty password keeps the stored one and an empty port picks the default.
	update := validConfigRequest()
	update.SenderPassword = ""
	update.SMTPPort = ""
	update.Encryption = model.EncryptionTLS
	w = s.do(t, http.MethodPut, "/api/v1/config/email", update)
	require.Equal(t, http.StatusOK, w.Code)

	stored := s.configs.GetEmailConfig()
	assert.Equal(t, "secret", stored.SenderPassword)
	assert.Equal(t, "587", stored.SMTPPort)
}

func TestPipelineStartRequiresValidConfig(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/pipeline/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	var errResp ErrorResponse
	decode(t, w, &errResp)
	assert.Equal(t, "config_invalid", errResp.Error)
	assert.False(t, s.configs.IsEnabled())

	require.NoError(t, s.configs.SaveEmailConfig(validConfigRequestModel()))
	w = s.do(t, http.MethodPost, "/api/v1/pipeline/start", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, s.configs.IsEnabled())
	assert.True(t, s.pipeline.IsRunning())
	assert.True(t, s.supervisor.IsRunning())

	w = s.do(t, http.MethodPost, "/api/v1/pipeline/stop", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, s.configs.IsEnabled())
	assert.False(t, s.pipeline.IsRunning())
}

func validConfigRequestModel() model.EmailConfig {
	r := validConfigRequest()
	return model.EmailConfig{
		SMTPServer:     r.SMTPServer,
		SMTPPort:       r.SMTPPort,
		Encryption:     r.Encryption,
		SenderEmail:    r.SenderEmail,
		SenderPassword: r.SenderPassword,
		RecipientEmail: r.RecipientEmail,
	}
}

func TestSetEnabled(t *testing.T) {
	s := setupTestServer(t)
	require.NoError(t, s.configs.SaveEmailConfig(validConfigRequestModel()))

	w := s.do(t, http.MethodPut, "/api/v1/config/enabled", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/config/enabled", EnabledRequest{Enabled: boolPtr(true)})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, s.pipeline.IsRunning())

	w = s.do(t, http.MethodPut, "/api/v1/config/enabled", EnabledRequest{Enabled: boolPtr(false)})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, s.pipeline.IsRunning())
	assert.False(t, s.configs.IsEnabled())
}

func boolPtr(b bool) *bool { return &b }

func TestNotificationFlow(t *testing.T) {
	s := setupTestServer(t)
	require.NoError(t, s.configs.SaveEmailConfig(validConfigRequestModel()))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/pipeline/start", nil).Code)

	w := s.do(t, http.MethodPost, "/api/v1/notifications", NotificationRequest{
		SourceIdentity: "chat.app",
		DisplayName:    "Chat",
		Title:          "Alice",
		Text:           "Lunch at noon?",
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	var result service.IngestResult
	decode(t, w, &result)
	require.True(t, result.Admitted)
	s.waitDeliveries(t)

	w = s.do(t, http.MethodGet, "/api/v1/history?page=0&size=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Records    []ForwardRecordResponse `json:"records"`
		Pagination struct {
			Total   int  `json:"total"`
			HasMore bool `json:"has_more"`
		} `json:"pagination"`
	}
	decode(t, w, &page)
	require.Len(t, page.Records, 1)
	assert.Equal(t, result.RecordID, page.Records[0].ID)
	assert.Equal(t, model.StatusSuccess, page.Records[0].Status)
	assert.Equal(t, "Alice: Lunch at noon?", page.Records[0].Preview)
	assert.Equal(t, 1, page.Pagination.Total)
	assert.False(t, page.Pagination.HasMore)

	w = s.do(t, http.MethodGet, "/api/v1/history/"+result.RecordID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/api/v1/history/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats model.Statistics
	decode(t, w, &stats)
	assert.Equal(t, 1, stats.TodayCount)
	assert.Equal(t, 1, stats.TotalCount)
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 1, stats.TodayRecords)
	assert.Equal(t, 1, stats.HistorySize)

	w = s.do(t, http.MethodDelete, "/api/v1/history", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, s.history.Len())
}

func TestNotificationIgnoredOrStopped(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/notifications", NotificationRequest{SourceIdentity: "chat.app", Title: "hi"})
	require.Equal(t, http.StatusOK, w.Code)
	var result service.IngestResult
	decode(t, w, &result)
	assert.Equal(t, service.ReasonStopped, result.Reason)

	s.pipeline.Start()
	w = s.do(t, http.MethodPost, "/api/v1/notifications", NotificationRequest{SourceIdentity: "music.app", Title: "Playing", IsOngoing: true})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &result)
	assert.False(t, result.Admitted)
	assert.Equal(t, filter.ReasonOngoing, result.Reason)

	w = s.do(t, http.MethodPost, "/api/v1/notifications", `{"title":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListenerAndBootCallbacks(t *testing.T) {
	s := setupTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/listener/connected", nil).Code)
	assert.True(t, s.pipeline.ListenerConnected())

	w := s.do(t, http.MethodGet, "/api/v1/pipeline/status", nil)
	var status service.PipelineStatus
	decode(t, w, &status)
	assert.True(t, status.ListenerConnected)
	assert.False(t, status.Healthy)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/listener/disconnected", nil).Code)
	assert.False(t, s.pipeline.ListenerConnected())

	assert.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/api/v1/lifecycle/boot", nil).Code)
	assert.Equal(t, supervisor.StateArmed, s.supervisor.State())
}

func TestSupervisorEndpoints(t *testing.T) {
	s := setupTestServer(t)
	require.NoError(t, s.configs.SetEnabled(true))
	s.pipeline.SetListenerConnected(true)

	w := s.do(t, http.MethodPost, "/api/v1/supervisor/run-once", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, s.pipeline.IsRunning())

	w = s.do(t, http.MethodGet, "/api/v1/supervisor/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status supervisor.Status
	decode(t, w, &status)
	assert.False(t, status.LastRun.IsZero())
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestServer(t)
	s.pipeline.Start()
	s.do(t, http.MethodPost, "/api/v1/notifications", NotificationRequest{SourceIdentity: "android", Title: "x"})

	w := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "notify_mail_relay_notifications_received_total 1")
	assert.Contains(t, w.Body.String(), `notify_mail_relay_notifications_ignored_total{reason="system"} 1`)
}

type streamedEvent struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data struct {
		RecordID string `json:"record_id"`
	} `json:"data"`
}

// nextEvent reads one SSE frame
func nextEvent(t *testing.T, scanner *bufio.Scanner) (string, streamedEvent, bool) {
	t.Helper()
	var name string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			name = strings.TrimPrefix(line, "event:")
		}
		if strings.HasPrefix(line, "data:") {
			var e streamedEvent
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &e))
			return name, e, true
		}
	}
	return "", streamedEvent{}, false
}

func TestStreamEvents(t *testing.T) {
	s := setupTestServer(t)
	srv := httptest.NewUnstartedServer(s.router)
	srv.Config.WriteTimeout = 200 * time.Millisecond
	srv.Start()
	defer srv.Close()

	// Headers are sent with the first event and the subscription starts
	// inside the handler, so publish until the client sees one.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.bus.Publish(events.Event{
					Type: events.TypeRecordStatusChanged,
					Data: events.StatusChange{RecordID: "rec-1", Status: "FAILED"},
				})
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	opened := time.Now()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	name, first, ok := nextEvent(t, scanner)
	require.True(t, ok)
	assert.Equal(t, events.TypeRecordStatusChanged, name)
	assert.Equal(t, "rec-1", first.Data.RecordID)

	// Events published well after the server write timeout still arrive.
	late := opened.Add(3 * srv.Config.WriteTimeout)
	for {
		_, e, ok := nextEvent(t, scanner)
		require.True(t, ok, "stream closed before %s", late)
		if e.Time.After(late) {
			break
		}
	}
}
