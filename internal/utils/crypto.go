package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// DeviceTokenLength is the length of an issued device token in hex characters.
const DeviceTokenLength = 40

// GenerateRandomKey returns 32 bytes of cryptographically random material.
func GenerateRandomKey() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return key
}

// NewDeviceToken returns an opaque fixed-length token for bridge device
// authentication. The token carries no tenant data.
func NewDeviceToken() string {
	raw := make([]byte, DeviceTokenLength/2)
	if _, err := rand.Read(raw); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(raw)
}
