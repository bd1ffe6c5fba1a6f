package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavola/printbridge/internal/db"
)

type capturedDelivery struct {
	event     string
	signature string
	body      []byte
}

type captureServer struct {
	mu         sync.Mutex
	deliveries []capturedDelivery
	status     int
	srv        *httptest.Server
}

func newCaptureServer(status int) *captureServer {
	cs := &captureServer{status: status}
	cs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		cs.mu.Lock()
		cs.deliveries = append(cs.deliveries, capturedDelivery{
			event:     r.Header.Get("X-Webhook-Event"),
			signature: r.Header.Get("X-Webhook-Signature"),
			body:      body,
		})
		cs.mu.Unlock()
		w.WriteHeader(cs.status)
	}))
	return cs
}

func (cs *captureServer) count() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.deliveries)
}

func (cs *captureServer) last() capturedDelivery {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.deliveries[len(cs.deliveries)-1]
}

func setupSenderTest(t *testing.T) *Sender {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.db")
	require.NoError(t, db.Init(db.Config{Path: path}))
	t.Cleanup(func() { db.Close() })

	sender := NewSender(Config{
		RetryCount:  2,
		RetryDelay:  10 * time.Millisecond,
		Timeout:     2 * time.Second,
		WorkerCount: 1,
		QueueSize:   10,
	}, zerolog.Nop())
	sender.Start()
	t.Cleanup(sender.Stop)
	return sender
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDeliverySignedAndFiltered(t *testing.T) {
	sender := setupSenderTest(t)
	ctx := context.Background()

	done := newCaptureServer(http.StatusOK)
	defer done.srv.Close()
	failed := newCaptureServer(http.StatusOK)
	defer failed.srv.Close()

	require.NoError(t, db.Webhooks.CreateWebhook(ctx, &db.Webhook{
		Name: "done-only", URL: done.srv.URL, Secret: "s3cret",
		EventsJSON: `["job.done"]`, Enabled: true,
	}))
	require.NoError(t, db.Webhooks.CreateWebhook(ctx, &db.Webhook{
		Name: "failed-only", URL: failed.srv.URL,
		EventsJSON: `["job.failed"]`, Enabled: true,
	}))

	deviceID := int64(7)
	sender.ReportJobDone(&db.PrintJob{
		ID: 42, TenantID: 1, RestaurantID: 10, DeviceID: &deviceID,
		Role: "kitchen", Status: "done",
	})

	waitFor(t, func() bool { return done.count() == 1 })
	// The failed-only subscriber never hears about completions.
	assert.Zero(t, failed.count())

	delivery := done.last()
	assert.Equal(t, "job.done", delivery.event)

	var payload Payload
	require.NoError(t, json.Unmarshal(delivery.body, &payload))
	assert.Equal(t, "job.done", payload.Event)

	data, err := json.Marshal(payload.Data)
	require.NoError(t, err)
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(data)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), delivery.signature)

	var event JobEventData
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, int64(42), event.JobID)
	assert.Equal(t, "done", event.Status)
}

func TestNoRetryOnClientError(t *testing.T) {
	sender := setupSenderTest(t)
	ctx := context.Background()

	server := newCaptureServer(http.StatusGone)
	defer server.srv.Close()

	require.NoError(t, db.Webhooks.CreateWebhook(ctx, &db.Webhook{
		Name: "gone", URL: server.srv.URL,
		EventsJSON: `["job.failed"]`, Enabled: true,
	}))

	sender.ReportJobFailed(&db.PrintJob{ID: 1, TenantID: 1, RestaurantID: 10, Role: "bar", Status: "failed"})

	waitFor(t, func() bool { return server.count() == 1 })
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, server.count(), "4xx responses must not be retried")
}

func TestRetryOnServerError(t *testing.T) {
	sender := setupSenderTest(t)
	ctx := context.Background()

	server := newCaptureServer(http.StatusInternalServerError)
	defer server.srv.Close()

	require.NoError(t, db.Webhooks.CreateWebhook(ctx, &db.Webhook{
		Name: "flaky", URL: server.srv.URL,
		EventsJSON: `["job.reclaimed"]`, Enabled: true,
	}))

	sender.ReportJobReclaimed(&db.PrintJob{ID: 2, TenantID: 1, RestaurantID: 10, Role: "bar", Status: "pending"})

	waitFor(t, func() bool { return server.count() == 2 })
}
