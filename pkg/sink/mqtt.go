package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"loralink/pkg/telemetry"
)

// DefaultTopic is the MQTT topic for telemetry records.
const DefaultTopic = "loralink/telemetry"

// DefaultStatusTopic is the MQTT topic for link status events.
const DefaultStatusTopic = "loralink/status"

// Publisher publishes telemetry to a broker. Failures must not crash the
// pipeline; the caller logs and moves on.
type Publisher interface {
	Publish(rec telemetry.Record) error
	PublishStatus(connected bool) error
	Close() error
}

type statusPayload struct {
	TS        string `json:"ts"`
	Connected bool   `json:"connected"`
}

// FormatPayload renders the MQTT telemetry payload.
func FormatPayload(rec telemetry.Record) ([]byte, error) {
	return json.Marshal(jsonlRecord{
		TS:   rec.Timestamp.UTC().Format(time.RFC3339Nano),
		Dev:  rec.DeviceID,
		Lat:  rec.Latitude,
		Lon:  rec.Longitude,
		Alt:  rec.Altitude,
		Spd:  rec.Speed,
		RSSI: rec.RSSI,
		SNR:  rec.SNR,
		Bat:  rec.Battery,
	})
}

// PahoPublisher publishes to a real MQTT broker.
type PahoPublisher struct {
	client      paho.Client
	topic       string
	statusTopic string
}

// NewPahoPublisher connects to the broker and returns a publisher.
func NewPahoPublisher(broker, clientID, topic string) (*PahoPublisher, error) {
	if clientID == "" {
		clientID = "lorad"
	}
	if topic == "" {
		topic = DefaultTopic
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("broker connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &PahoPublisher{
		client:      client,
		topic:       topic,
		statusTopic: DefaultStatusTopic,
	}, nil
}

// Publish sends one telemetry record at QoS 0.
func (p *PahoPublisher) Publish(rec telemetry.Record) error {
	payload, err := FormatPayload(rec)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishStatus sends a retained link-status event at QoS 1 so late
// subscribers see the current state.
func (p *PahoPublisher) PublishStatus(connected bool) error {
	payload, err := json.Marshal(statusPayload{
		TS:        time.Now().UTC().Format(time.RFC3339),
		Connected: connected,
	})
	if err != nil {
		return fmt.Errorf("format status: %w", err)
	}
	token := p.client.Publish(p.statusTopic, 1, true, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish status timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish status: %w", err)
	}
	return nil
}

func (p *PahoPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

// PumpRecords feeds a hub subscription into a publisher until the context
// ends. Publish failures are logged, never fatal.
func PumpRecords(ctx context.Context, pub Publisher, in <-chan telemetry.Record, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-in:
			if !ok {
				return
			}
			if err := pub.Publish(rec); err != nil {
				log.Warn().Err(err).Msg("mqtt publish failed")
			}
		}
	}
}
