package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tavola/printbridge/internal/db"
)

type Event string

const (
	EventJobDone      Event = "job.done"
	EventJobFailed    Event = "job.failed"
	EventJobReclaimed Event = "job.reclaimed"
)

type Payload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	Signature string      `json:"signature,omitempty"`
}

// JobEventData is what a producer gets back about a job it created.
type JobEventData struct {
	JobID        int64  `json:"job_id"`
	TenantID     int64  `json:"tenant_id"`
	RestaurantID int64  `json:"restaurant_id"`
	OrderID      *int64 `json:"order_id,omitempty"`
	DeviceID     *int64 `json:"device_id,omitempty"`
	Role         string `json:"role"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Attempts     int    `json:"attempts"`
}

type Config struct {
	RetryCount  int
	RetryDelay  time.Duration
	Timeout     time.Duration
	WorkerCount int
	QueueSize   int
}

type task struct {
	webhookID int64
	event     Event
	payload   *Payload
	attempt   int
}

type Sender struct {
	httpClient  *http.Client
	retryCount  int
	retryDelay  time.Duration
	workerCount int
	queue       chan *task
	stopCh      chan struct{}
	wg          sync.WaitGroup
	log         zerolog.Logger
}

func NewSender(cfg Config, logger zerolog.Logger) *Sender {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	return &Sender{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryCount:  cfg.RetryCount,
		retryDelay:  cfg.RetryDelay,
		workerCount: cfg.WorkerCount,
		queue:       make(chan *task, cfg.QueueSize),
		stopCh:      make(chan struct{}),
		log:         logger,
	}
}

func (s *Sender) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *Sender) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Sender) ReportJobDone(job *db.PrintJob) {
	s.enqueue(EventJobDone, jobEventData(job))
}

func (s *Sender) ReportJobFailed(job *db.PrintJob) {
	s.enqueue(EventJobFailed, jobEventData(job))
}

func (s *Sender) ReportJobReclaimed(job *db.PrintJob) {
	s.enqueue(EventJobReclaimed, jobEventData(job))
}

func jobEventData(job *db.PrintJob) *JobEventData {
	return &JobEventData{
		JobID:        job.ID,
		TenantID:     job.TenantID,
		RestaurantID: job.RestaurantID,
		OrderID:      job.OrderID,
		DeviceID:     job.DeviceID,
		Role:         job.Role,
		Status:       job.Status,
		ErrorMessage: job.ErrorMessage,
		Attempts:     job.Attempts,
	}
}

func (s *Sender) enqueue(event Event, data interface{}) {
	webhooks, err := db.Webhooks.ListActiveWebhooksForEvent(context.Background(), string(event))
	if err != nil {
		s.log.Error().Err(err).Str("event", string(event)).Msg("failed to get webhooks for event")
		return
	}

	for _, webhook := range webhooks {
		t := &task{
			webhookID: webhook.ID,
			event:     event,
			payload: &Payload{
				Event:     string(event),
				Timestamp: time.Now().UTC(),
				Data:      data,
			},
		}

		select {
		case s.queue <- t:
		default:
			s.log.Warn().
				Int64("webhook_id", webhook.ID).
				Str("event", string(event)).
				Msg("webhook queue full, dropping delivery")
		}
	}
}

func (s *Sender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case t := <-s.queue:
			if err := s.sendWithRetry(t); err != nil {
				s.log.Error().Err(err).
					Int("worker", id).
					Int64("webhook_id", t.webhookID).
					Str("event", string(t.event)).
					Int("attempts", t.attempt).
					Msg("webhook delivery failed")
			}
		}
	}
}

func (s *Sender) sendWithRetry(t *task) error {
	webhook, err := db.Webhooks.GetWebhookByID(context.Background(), t.webhookID)
	if err != nil {
		return fmt.Errorf("get webhook: %w", err)
	}

	var lastErr error
	for t.attempt < s.retryCount {
		t.attempt++

		err := s.sendRequest(webhook, t.payload)
		if err == nil {
			return nil
		}

		lastErr = err

		if isClientError(err) {
			return err
		}

		if t.attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(t.attempt-1))
			select {
			case <-s.stopCh:
				return fmt.Errorf("shutdown requested")
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *Sender) sendRequest(webhook *db.Webhook, payload *Payload) error {
	dataBytes, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	if webhook.Secret != "" {
		payload.Signature = signPayload(dataBytes, webhook.Secret)
	}

	fullPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, webhook.URL, bytes.NewReader(fullPayload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", payload.Signature)
	req.Header.Set("X-Webhook-Event", payload.Event)
	req.Header.Set("X-Delivery-ID", uuid.NewString())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("http error: %d", resp.StatusCode)
	}

	return nil
}

func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func isClientError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "http error: 4")
}
