package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/canal-compras/disputa/internal/domain/notification"
)

// LogNotifier writes notifications to the log. It is the default collaborator.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, msg *notification.Notification) {
	n.logger.Info().
		Str("notification_id", msg.NotificationID.String()).
		Str("kind", string(msg.Kind)).
		Str("tender_id", msg.TenderID).
		Str("lot_id", msg.LotID).
		Str("title", msg.Title).
		Msg("notification")
}

// WebhookConfig configures delivery to an external notification service.
type WebhookConfig struct {
	URL       string
	Token     string
	QueueSize int
	Timeout   time.Duration
}

// WebhookNotifier posts notifications as JSON from a single worker. Notify never
// blocks the caller; when the queue is full the notification is dropped.
type WebhookNotifier struct {
	cfg    WebhookConfig
	client *http.Client
	queue  chan *notification.Notification
	logger zerolog.Logger

	done chan struct{}
}

func NewWebhookNotifier(cfg WebhookConfig, logger zerolog.Logger) *WebhookNotifier {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		queue:  make(chan *notification.Notification, cfg.QueueSize),
		logger: logger.With().Str("component", "notify").Str("sink", "webhook").Logger(),
		done:   make(chan struct{}),
	}
}

func (n *WebhookNotifier) Notify(_ context.Context, msg *notification.Notification) {
	select {
	case n.queue <- msg:
	default:
		n.logger.Warn().Err(notification.ErrQueueFull).Str("notification_id", msg.NotificationID.String()).Msg("notification dropped")
	}
}

// Start runs the delivery worker until ctx is done; queued items are drained first.
func (n *WebhookNotifier) Start(ctx context.Context) {
	go func() {
		defer close(n.done)
		for {
			select {
			case msg := <-n.queue:
				n.deliver(msg)
			case <-ctx.Done():
				n.drain()
				return
			}
		}
	}()
}

// Wait blocks until the worker started by Start returned.
func (n *WebhookNotifier) Wait() {
	<-n.done
}

func (n *WebhookNotifier) drain() {
	for {
		select {
		case msg := <-n.queue:
			n.deliver(msg)
		default:
			return
		}
	}
}

// deliver is detached from the worker context so shutdown still flushes the queue.
func (n *WebhookNotifier) deliver(msg *notification.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout)
	defer cancel()
	if err := n.post(ctx, msg); err != nil {
		n.logger.Warn().Err(err).Str("notification_id", msg.NotificationID.String()).Msg("notification delivery failed")
	}
}

func (n *WebhookNotifier) post(ctx context.Context, msg *notification.Notification) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.NotificationID.String())
	if n.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+n.cfg.Token)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
