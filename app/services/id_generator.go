package services

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

const referralAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ReferralIDLength is the length of generated referral ids
const ReferralIDLength = 10

// IDGenerator issues identifiers for new entities
type IDGenerator interface {
	NewUUID() uuid.UUID
	ReferralID() string
	AccessKey() string
}

// UUIDGenerator implements IDGenerator on random (v4) UUIDs
type UUIDGenerator struct{}

// NewIDGenerator creates a new UUID based id generator
func NewIDGenerator() IDGenerator {
	return UUIDGenerator{}
}

func (UUIDGenerator) NewUUID() uuid.UUID {
	return uuid.New()
}

// ReferralID returns uppercase alphanumerics taken from the random bytes of a UUID
func (UUIDGenerator) ReferralID() string {
	id := uuid.New()
	var sb strings.Builder
	sb.Grow(ReferralIDLength)
	for i := 0; i < ReferralIDLength; i++ {
		sb.WriteByte(referralAlphabet[int(id[i+6])%len(referralAlphabet)])
	}
	return sb.String()
}

// AccessKey returns 32 hex characters
func (UUIDGenerator) AccessKey() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
