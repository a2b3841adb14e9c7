// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

// Package report decrypts location reports and orders them for storage.
package report

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/gearsfleet/haystacked/internal/model"
)

// Payload layout after the quirk byte is removed.
const (
	PayloadSize = 88
	// AppleEpochOffset is 2001-01-01T00:00:00Z in unix seconds.
	AppleEpochOffset = 978307200

	quirkOffset     = 4
	ephemeralOffset = 5
	ephemeralSize   = 57
	cipherOffset    = ephemeralOffset + ephemeralSize
	cipherSize      = 10
	tagOffset       = cipherOffset + cipherSize
	tagSize         = 16

	coordinateScale = 1e-7
)

// ErrCorruptReport marks a report that cannot be decoded or fails
// authentication. It never aborts a batch.
var ErrCorruptReport = errors.New("corrupt report")

// Keys resolves a report id to the tag that owns it.
type Keys interface {
	Lookup(id string) (model.TagKeyPair, bool)
}

// Curve is the curve tag keys live on.
func Curve() elliptic.Curve { return elliptic.P224() }

// Decode turns one encrypted report into a location. It returns (nil, nil)
// when the report id is unknown or the report predates windowStart.
func Decode(r model.EncryptedReport, keys Keys, windowStart int64) (*model.DecodedLocationReport, error) {
	pair, ok := keys.Lookup(r.ID)
	if !ok {
		return nil, nil
	}

	data, err := PayloadBytes(r.Payload)
	if err != nil {
		return nil, err
	}

	ts := Timestamp(data)
	if ts < windowStart {
		return nil, nil
	}

	eph := data[ephemeralOffset:cipherOffset]
	shared, err := SharedSecret(pair.Scalar(), eph)
	if err != nil {
		return nil, err
	}
	key, iv := DeriveKey(shared, eph)

	plain, err := open(key, iv, data[cipherOffset:tagOffset], data[tagOffset:tagOffset+tagSize])
	if err != nil {
		return nil, err
	}

	lat, lon, conf, status := decodePlaintext(plain)
	return &model.DecodedLocationReport{
		TagName:    pair.Name,
		Timestamp:  ts,
		Latitude:   lat,
		Longitude:  lon,
		Confidence: conf,
		Status:     status,
	}, nil
}

// PayloadBytes base64-decodes a payload and drops the extra byte at offset 4
// that longer payloads carry.
func PayloadBytes(payload string) ([]byte, error) {
	clean := strings.NewReplacer("\r", "", "\n", "").Replace(payload)
	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrCorruptReport, err)
	}
	if len(data) > PayloadSize {
		data = append(data[:quirkOffset:quirkOffset], data[quirkOffset+1:]...)
	}
	if len(data) != PayloadSize {
		return nil, fmt.Errorf("%w: payload is %d bytes", ErrCorruptReport, len(data))
	}
	return data, nil
}

// Timestamp reads the unix time of a corrected payload.
func Timestamp(data []byte) int64 {
	return int64(int32(binary.BigEndian.Uint32(data[0:4]))) + AppleEpochOffset
}

// SharedSecret performs ECDH between the tag scalar and an uncompressed
// ephemeral point. The result is the 28-byte x coordinate.
func SharedSecret(priv *big.Int, ephemeral []byte) ([]byte, error) {
	curve := Curve()
	x, y := elliptic.Unmarshal(curve, ephemeral) //nolint:staticcheck // crypto/ecdh has no P-224
	if x == nil {
		return nil, fmt.Errorf("%w: ephemeral key not on curve", ErrCorruptReport)
	}
	sx, _ := curve.ScalarMult(x, y, priv.Bytes()) //nolint:staticcheck
	return sx.FillBytes(make([]byte, (curve.Params().BitSize+7)/8)), nil
}

// DeriveKey expands a shared secret into an AES-128 key and a 16-byte IV.
func DeriveKey(shared, ephemeral []byte) (key, iv []byte) {
	h := sha256.New()
	h.Write(shared)
	h.Write([]byte{0, 0, 0, 1})
	h.Write(ephemeral)
	sum := h.Sum(nil)
	return sum[:16], sum[16:]
}

// NewAEAD returns the GCM instance used for report payloads.
func NewAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, 16)
}

func open(key, iv, ct, tag []byte) ([]byte, error) {
	aead, err := NewAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptReport, err)
	}
	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plain, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptReport, err)
	}
	return plain, nil
}

func decodePlaintext(p []byte) (lat, lon float64, confidence, status uint8) {
	lat = float64(int32(binary.BigEndian.Uint32(p[0:4]))) * coordinateScale
	lon = float64(int32(binary.BigEndian.Uint32(p[4:8]))) * coordinateScale
	return lat, lon, p[8], p[9]
}
