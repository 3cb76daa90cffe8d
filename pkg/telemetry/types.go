package telemetry

import "time"

// Record is a decoded, validated telemetry point from the relay.
// It is created once by a successful decode and never mutated after.
type Record struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	Altitude  float64   `json:"alt"`
	Speed     float64   `json:"spd"`
	RSSI      int       `json:"rssi"`
	SNR       int       `json:"snr"`
	Battery   int       `json:"bat"`
	DeviceID  string    `json:"dev,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// Signal is link-quality metadata supplied out-of-band by the transport
// (BLE notification metadata; USB has none).
type Signal struct {
	RSSI int
	SNR  int
}

// RawPacket is one framed packet awaiting decode. The framer owns it until
// it is handed to the decoder; its lifetime ends at the decode attempt.
type RawPacket struct {
	Bytes      []byte
	Signal     *Signal
	ReceivedAt time.Time
}
