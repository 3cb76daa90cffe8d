// Package telemetry implements the relay's two wire formats: a JSON object
// and a fixed-layout binary packet. Decoding is a pure function over the
// framed bytes; timestamps are assigned at decode time because the binary
// format carries none.
package telemetry

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

const (
	// BinarySize is the fixed binary layout:
	// [0:4) lat f32, [4:8) lon f32, [8:12) alt f32, [12:16) spd f32, [16] bat u8.
	BinarySize = 17

	// BinarySizeCRC is the checksummed variant: BinarySize payload bytes
	// followed by one Maxim CRC-8 byte. Bare 17-byte packets remain valid.
	BinarySizeCRC = BinarySize + 1
)

// Decoder converts framed packets into Records. Safe for concurrent use.
type Decoder struct {
	order binary.ByteOrder
	now   func() time.Time
}

type DecoderOption func(*Decoder)

// WithByteOrder sets the binary byte order. The default is little-endian,
// the ESP32 encoder's native order.
func WithByteOrder(order binary.ByteOrder) DecoderOption {
	return func(d *Decoder) {
		if order != nil {
			d.order = order
		}
	}
}

// WithClock overrides the capture-time source.
func WithClock(now func() time.Time) DecoderOption {
	return func(d *Decoder) {
		if now != nil {
			d.now = now
		}
	}
}

func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		order: binary.LittleEndian,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode parses one framed packet. The first non-whitespace byte selects the
// format: '{' means JSON, anything else means fixed binary. Signal metadata
// is injected from the packet, not the payload. A packet made entirely of
// whitespace-valued bytes has no first non-whitespace byte and is rejected
// as malformed, even though such bytes form a syntactically valid binary
// layout; detection needs at least one non-whitespace byte.
func (d *Decoder) Decode(pkt RawPacket) (Record, error) {
	payload := trimLeadingSpace(pkt.Bytes)
	if len(payload) == 0 {
		return Record{}, malformed(fmt.Errorf("empty packet"))
	}

	var rec Record
	var err error
	if payload[0] == '{' {
		rec, err = d.decodeJSON(payload)
	} else {
		rec, err = d.decodeBinary(pkt.Bytes)
	}
	if err != nil {
		return Record{}, err
	}

	if pkt.Signal != nil {
		rec.RSSI = pkt.Signal.RSSI
		rec.SNR = pkt.Signal.SNR
	}
	rec.Timestamp = d.now()
	return rec, nil
}

type jsonPacket struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
	Alt *float64 `json:"alt"`
	Spd *float64 `json:"spd"`
	Dev *string  `json:"dev"`
	Bat *int     `json:"bat"`
}

func (d *Decoder) decodeJSON(payload []byte) (Record, error) {
	var jp jsonPacket
	if err := json.Unmarshal(payload, &jp); err != nil {
		if typeErr, ok := err.(*json.UnmarshalTypeError); ok {
			return Record{}, invalidField(typeErr.Field, err)
		}
		return Record{}, malformed(err)
	}

	if jp.Lat == nil {
		return Record{}, invalidField("lat", fmt.Errorf("required key missing"))
	}
	if jp.Lon == nil {
		return Record{}, invalidField("lon", fmt.Errorf("required key missing"))
	}

	rec := Record{
		Latitude:  *jp.Lat,
		Longitude: *jp.Lon,
	}
	if jp.Alt != nil {
		rec.Altitude = *jp.Alt
	}
	if jp.Spd != nil {
		rec.Speed = *jp.Spd
	}
	if jp.Bat != nil {
		rec.Battery = *jp.Bat
	}
	if jp.Dev != nil {
		rec.DeviceID = *jp.Dev
	}

	if err := validate(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (d *Decoder) decodeBinary(payload []byte) (Record, error) {
	if len(payload) < BinarySize {
		return Record{}, truncated(fmt.Errorf("got %d bytes, want %d", len(payload), BinarySize))
	}
	if len(payload) == BinarySizeCRC {
		if got, want := Checksum(payload[:BinarySize]), payload[BinarySize]; got != want {
			return Record{}, malformed(fmt.Errorf("crc mismatch: got 0x%02x want 0x%02x", want, got))
		}
	}

	rec := Record{
		Latitude:  float64(math.Float32frombits(d.order.Uint32(payload[0:4]))),
		Longitude: float64(math.Float32frombits(d.order.Uint32(payload[4:8]))),
		Altitude:  float64(math.Float32frombits(d.order.Uint32(payload[8:12]))),
		Speed:     float64(math.Float32frombits(d.order.Uint32(payload[12:16]))),
		Battery:   int(payload[16]),
	}

	if err := validate(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// validate enforces the record invariants. Out-of-range values fail the
// decode; they are never clamped.
func validate(rec Record) error {
	if !(rec.Latitude >= -90 && rec.Latitude <= 90) {
		return invalidField("lat", fmt.Errorf("latitude %v out of range [-90,90]", rec.Latitude))
	}
	if !(rec.Longitude >= -180 && rec.Longitude <= 180) {
		return invalidField("lon", fmt.Errorf("longitude %v out of range [-180,180]", rec.Longitude))
	}
	if !(rec.Speed >= 0) {
		return invalidField("spd", fmt.Errorf("speed %v is negative", rec.Speed))
	}
	if rec.Battery < 0 || rec.Battery > 100 {
		return invalidField("bat", fmt.Errorf("battery %d out of range [0,100]", rec.Battery))
	}
	return nil
}

func trimLeadingSpace(b []byte) []byte {
	for len(b) > 0 {
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			b = b[1:]
		default:
			return b
		}
	}
	return b
}
