// Copyright (c) 2026 hayStacked Team
// hayStacked - crowd-sourced tag location retrieval
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model defines the plain data types passed between the stages of a
// fetch cycle.
package model

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/gearsfleet/haystacked/internal/security"
)

// TagKeyPair is one tracking tag loaded from a key file.
type TagKeyPair struct {
	// Name is the key file name without extension; it doubles as the bike id.
	Name string
	// HashedAdvKey is the base64 hashed advertisement key, used as report id.
	HashedAdvKey string
	// PrivateKey holds the big-endian private scalar on secp224r1.
	PrivateKey security.Secret
}

// Scalar returns the private key as an integer.
func (k TagKeyPair) Scalar() *big.Int {
	return new(big.Int).SetBytes(k.PrivateKey)
}

// EncryptedReport is one entry of the gateway's results array.
type EncryptedReport struct {
	ID      string `json:"id"`
	Payload string `json:"payload"`
}

// DecodedLocationReport is a decrypted sighting of a tag.
type DecodedLocationReport struct {
	TagName    string
	Timestamp  int64
	Latitude   float64
	Longitude  float64
	Confidence uint8
	Status     uint8
}

// Time returns the report timestamp in UTC.
func (r DecodedLocationReport) Time() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

// MapsURL returns a link that opens the coordinates in a map viewer.
func (r DecodedLocationReport) MapsURL() string {
	return "https://maps.google.com/maps?q=" +
		strconv.FormatFloat(r.Latitude, 'f', -1, 64) + "," +
		strconv.FormatFloat(r.Longitude, 'f', -1, 64)
}

// String renders the report the way the cycle logs it.
func (r DecodedLocationReport) String() string {
	return fmt.Sprintf("(%q, %d, %q, %v, %v, %q, %d, %d)",
		r.TagName, r.Timestamp, r.Time().Format(time.RFC3339), r.Latitude, r.Longitude,
		r.MapsURL(), r.Status, r.Confidence)
}

// LocationRow is one persisted position of a bike.
type LocationRow struct {
	BikeID    string
	Timestamp int64
	Latitude  float64
	Longitude float64
}

// RowFromReport projects a decoded report onto the persisted columns.
func RowFromReport(r DecodedLocationReport) LocationRow {
	return LocationRow{
		BikeID:    r.TagName,
		Timestamp: r.Timestamp,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}
}
