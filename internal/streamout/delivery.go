package streamout

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
)

// AlarmPayload is the exact wire shape delivered to every channel.
type AlarmPayload struct {
	EventID       string                 `json:"event_id"`
	CameraID      string                 `json:"camera_id"`
	RuleID        string                 `json:"rule_id"`
	EventType     string                 `json:"event_type"`
	Timestamp     string                 `json:"timestamp"`
	BBox          model.BBox             `json:"bbox"`
	TrackID       uint32                 `json:"track_id"`
	LocalTrackID  uint32                 `json:"local_track_id"`
	GlobalTrackID string                 `json:"global_track_id,omitempty"`
	Confidence    float64                `json:"confidence"`
	Snapshot      string                 `json:"snapshot"`
	TestMode      bool                   `json:"test_mode"`
}

// BuildAlarmPayload projects a BehaviorEvent plus the JPEG snapshot of
// its triggering frame into the wire payload.
func BuildAlarmPayload(ev model.BehaviorEvent, jpegSnapshot []byte) AlarmPayload {
	snapshot := ""
	if len(jpegSnapshot) > 0 {
		snapshot = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegSnapshot)
	}
	return AlarmPayload{
		EventID:       ev.ID,
		CameraID:      ev.CameraID,
		RuleID:        ev.RuleID,
		EventType:     string(ev.EventType),
		Timestamp:     ev.StartTS.UTC().Format(time.RFC3339),
		BBox:          ev.BBox,
		TrackID:       ev.TrackID,
		LocalTrackID:  ev.TrackID,
		GlobalTrackID: ev.GlobalTrackID,
		Confidence:    ev.Confidence,
		Snapshot:      snapshot,
		TestMode:      ev.TestMode,
	}
}

// DeliveryChannel is one fire-and-forget alarm transport. Send must not
// block the caller beyond its own internal timeout; callers dispatch to
// all configured channels concurrently so one slow/failed channel never
// blocks the others.
type DeliveryChannel interface {
	Name() string
	Send(ctx context.Context, payload AlarmPayload) error
}

// ChannelFactory constructs a DeliveryChannel from a config blob,
// mirroring the teacher's vendor-adapter factory shape.
type ChannelFactory func(cfg map[string]any) (DeliveryChannel, error)

var (
	channelRegistryMu sync.RWMutex
	channelRegistry   = map[string]ChannelFactory{}
)

// RegisterChannel adds a factory for a channel kind ("http", "websocket",
// "mqtt", "nats").
func RegisterChannel(kind string, f ChannelFactory) {
	channelRegistryMu.Lock()
	defer channelRegistryMu.Unlock()
	channelRegistry[kind] = f
}

// NewChannel builds a channel of the given kind from cfg.
func NewChannel(kind string, cfg map[string]any) (DeliveryChannel, error) {
	channelRegistryMu.RLock()
	f, ok := channelRegistry[kind]
	channelRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("streamout: unknown delivery channel kind %q", kind)
	}
	return f(cfg)
}

func init() {
	RegisterChannel("http", newHTTPChannelFromConfig)
	RegisterChannel("websocket", newWebSocketChannelFromConfig)
	RegisterChannel("mqtt", newMQTTChannelFromConfig)
	RegisterChannel("nats", newNATSChannelFromConfig)
}

// --- HTTP channel, grounded on internal/sfu/client.go's request shape ---

type httpChannel struct {
	url    string
	client *http.Client
}

func newHTTPChannelFromConfig(cfg map[string]any) (DeliveryChannel, error) {
	url, _ := cfg["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("streamout: http channel requires url")
	}
	return NewHTTPChannel(url), nil
}

// NewHTTPChannel posts the alarm payload as JSON to url.
func NewHTTPChannel(url string) DeliveryChannel {
	return &httpChannel{url: url, client: &http.Client{Timeout: 3 * time.Second}}
}

func (h *httpChannel) Name() string { return "http" }

func (h *httpChannel) Send(ctx context.Context, payload AlarmPayload) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return fmt.Errorf("streamout: encode http alarm payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("streamout: http alarm delivery: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("streamout: http alarm delivery status=%d", resp.StatusCode)
	}
	return nil
}

// --- WebSocket channel, grounded on internal/discovery/ws_discovery.go's
// usage of gorilla/websocket for outbound push ---

type wsChannel struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn
}

func newWebSocketChannelFromConfig(cfg map[string]any) (DeliveryChannel, error) {
	url, _ := cfg["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("streamout: websocket channel requires url")
	}
	return NewWebSocketChannel(url), nil
}

// NewWebSocketChannel lazily dials url on first Send and reuses the
// connection; a broken connection is redialed on the next Send.
func NewWebSocketChannel(url string) DeliveryChannel {
	return &wsChannel{url: url}
}

func (w *wsChannel) Name() string { return "websocket" }

func (w *wsChannel) Send(ctx context.Context, payload AlarmPayload) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
		conn, _, err := dialer.DialContext(ctx, w.url, nil)
		if err != nil {
			return fmt.Errorf("streamout: websocket dial: %w", err)
		}
		w.conn = conn
	}

	if err := w.conn.WriteJSON(payload); err != nil {
		w.conn.Close()
		w.conn = nil
		return fmt.Errorf("streamout: websocket write: %w", err)
	}
	return nil
}

// --- MQTT channel, grounded on the pack's tiUlisses-cam-bus /
// quando2299-rmcs publish-with-QoS usage of paho.mqtt.golang ---

type mqttChannel struct {
	client mqtt.Client
	topic  string
	qos    byte
}

func newMQTTChannelFromConfig(cfg map[string]any) (DeliveryChannel, error) {
	broker, _ := cfg["broker"].(string)
	topic, _ := cfg["topic"].(string)
	if broker == "" || topic == "" {
		return nil, fmt.Errorf("streamout: mqtt channel requires broker and topic")
	}
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID("aisecurityvision-alarm-" + topic)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("streamout: mqtt connect: %w", token.Error())
	}
	return NewMQTTChannel(client, topic), nil
}

// NewMQTTChannel publishes the alarm payload (QoS 1, not retained) to
// an already-connected client.
func NewMQTTChannel(client mqtt.Client, topic string) DeliveryChannel {
	return &mqttChannel{client: client, topic: topic, qos: 1}
}

func (m *mqttChannel) Name() string { return "mqtt" }

func (m *mqttChannel) Send(ctx context.Context, payload AlarmPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("streamout: encode mqtt alarm payload: %w", err)
	}
	token := m.client.Publish(m.topic, m.qos, false, data)
	done := make(chan struct{})
	go func() { token.Wait(); close(done) }()
	select {
	case <-done:
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- NATS channel, reusing internal/nvr/nats_publisher.go's
// publish-with-retry shape ---

type natsChannel struct {
	conn       *nats.Conn
	subject    string
	maxRetries int
}

func newNATSChannelFromConfig(cfg map[string]any) (DeliveryChannel, error) {
	url, _ := cfg["url"].(string)
	subject, _ := cfg["subject"].(string)
	if url == "" || subject == "" {
		return nil, fmt.Errorf("streamout: nats channel requires url and subject")
	}
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("streamout: nats connect: %w", err)
	}
	return NewNATSChannel(conn, subject, 3), nil
}

// NewNATSChannel publishes with up to maxRetries retries and a short
// linear backoff between attempts.
func NewNATSChannel(conn *nats.Conn, subject string, maxRetries int) DeliveryChannel {
	return &natsChannel{conn: conn, subject: subject, maxRetries: maxRetries}
}

func (n *natsChannel) Name() string { return "nats" }

func (n *natsChannel) Send(ctx context.Context, payload AlarmPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("streamout: encode nats alarm payload: %w", err)
	}

	var lastErr error
	for i := 0; i <= n.maxRetries; i++ {
		if lastErr = n.conn.Publish(n.subject, data); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i*100) * time.Millisecond):
		}
	}
	return fmt.Errorf("streamout: nats publish failed after %d retries: %w", n.maxRetries, lastErr)
}
