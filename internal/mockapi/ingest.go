package mockapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/five82/roomwatch/internal/backend"
)

// DefaultTopic is the MQTT filter the ingestor subscribes to. The last topic
// level is the sensor id.
const DefaultTopic = "roomwatch/sensors/+"

// Reading is the JSON payload devices publish.
type Reading struct {
	// Timestamp is unix seconds; zero means "now".
	Timestamp int64              `json:"timestamp"`
	Data      map[string]float64 `json:"data"`
}

// DecodeReading extracts the sensor id from topic and the reading from payload.
func DecodeReading(topic string, payload []byte, now time.Time) (string, backend.Details, error) {
	idx := strings.LastIndexByte(topic, '/')
	sensorID := topic[idx+1:]
	if sensorID == "" || sensorID == "+" || sensorID == "#" {
		return "", backend.Details{}, fmt.Errorf("topic %q carries no sensor id", topic)
	}

	var r Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return "", backend.Details{}, fmt.Errorf("decode reading: %w", err)
	}
	if len(r.Data) == 0 {
		return "", backend.Details{}, fmt.Errorf("reading for %s has no data", sensorID)
	}

	at := now
	if r.Timestamp > 0 {
		at = time.Unix(r.Timestamp, 0)
	}
	return sensorID, backend.Details{Timestamp: backend.NewTimestamp(at), Data: r.Data}, nil
}

// Ingestor feeds readings published over MQTT into a Store.
type Ingestor struct {
	store  *Store
	client mqtt.Client
	topic  string
	log    *slog.Logger
}

// NewIngestor connects to broker and subscribes to topic.
func NewIngestor(store *Store, broker, topic string, logger *slog.Logger) (*Ingestor, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ing := &Ingestor{store: store, topic: topic, log: logger}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("roomwatch-mockapi").
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			// Subscriptions do not survive a reconnect with a clean session.
			if token := c.Subscribe(topic, 0, ing.handle); token.Wait() && token.Error() != nil {
				logger.Error("mqtt subscribe failed", "topic", topic, "err", token.Error())
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "err", err)
		})

	ing.client = mqtt.NewClient(opts)
	if token := ing.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", broker, token.Error())
	}
	logger.Info("mqtt ingest started", "broker", broker, "topic", topic)
	return ing, nil
}

func (i *Ingestor) handle(_ mqtt.Client, msg mqtt.Message) {
	i.Apply(msg.Topic(), msg.Payload())
}

// Apply decodes one message and stores it, logging anything it must drop.
func (i *Ingestor) Apply(topic string, payload []byte) bool {
	sensorID, d, err := DecodeReading(topic, payload, time.Now())
	if err != nil {
		i.log.Warn("mqtt message dropped", "topic", topic, "err", err)
		return false
	}
	if err := i.store.Ingest(sensorID, d); err != nil {
		i.log.Warn("mqtt reading rejected", "sensor", sensorID, "err", err)
		return false
	}
	return true
}

// Close disconnects from the broker.
func (i *Ingestor) Close() {
	if i.client != nil && i.client.IsConnected() {
		i.client.Disconnect(250)
	}
}
