package telemetry

import (
	"encoding/binary"
	"encoding/json"
	"math"
)

type jsonWire struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
	Spd float64 `json:"spd"`
	Dev string  `json:"dev,omitempty"`
	Bat int     `json:"bat"`
}

// EncodeJSON renders rec in the relay's JSON wire schema. Signal metadata and
// the timestamp are not part of the payload.
func EncodeJSON(rec Record) ([]byte, error) {
	return json.Marshal(jsonWire{
		Lat: rec.Latitude,
		Lon: rec.Longitude,
		Alt: rec.Altitude,
		Spd: rec.Speed,
		Dev: rec.DeviceID,
		Bat: rec.Battery,
	})
}

// AppendBinary appends the 17-byte fixed layout to dst.
func AppendBinary(dst []byte, rec Record, order binary.ByteOrder) []byte {
	var buf [BinarySize]byte
	order.PutUint32(buf[0:4], math.Float32bits(float32(rec.Latitude)))
	order.PutUint32(buf[4:8], math.Float32bits(float32(rec.Longitude)))
	order.PutUint32(buf[8:12], math.Float32bits(float32(rec.Altitude)))
	order.PutUint32(buf[12:16], math.Float32bits(float32(rec.Speed)))
	buf[16] = uint8(rec.Battery)
	return append(dst, buf[:]...)
}

// AppendBinaryCRC appends the checksummed 18-byte variant to dst.
func AppendBinaryCRC(dst []byte, rec Record, order binary.ByteOrder) []byte {
	start := len(dst)
	dst = AppendBinary(dst, rec, order)
	return append(dst, Checksum(dst[start:]))
}

// Checksum computes the Maxim CRC-8 (poly 0x31 reflected) over data.
func Checksum(data []byte) uint8 {
	var crc uint8
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0x8C
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
