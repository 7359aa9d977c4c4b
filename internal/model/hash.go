package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows the algorithm to change without collisions.
const (
	DomainOutbox      = "shiksha/outbox/v1"
	DomainAchievement = "shiksha/achievement/v1"
	DomainPayload     = "shiksha/payload/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// OutboxID is the idempotency key of the outbox item carrying payloadRef.
// The remote deduplicates on it, so replaying an item never double-applies.
func OutboxID(kind OutboxKind, payloadRef string) string {
	canonical, err := MarshalCanonical(map[string]string{
		"kind":        string(kind),
		"payload_ref": payloadRef,
	})
	if err != nil {
		// Two plain strings always marshal.
		panic(fmt.Sprintf("OutboxID: %v", err))
	}
	return hashWithDomain(DomainOutbox, canonical)
}

// AchievementEventID identifies the unlock of achievementID by studentID.
// An achievement unlocks at most once per student.
func AchievementEventID(studentID, achievementID string) string {
	canonical, err := MarshalCanonical(map[string]string{
		"achievement_id": achievementID,
		"student_id":     studentID,
	})
	if err != nil {
		panic(fmt.Sprintf("AchievementEventID: %v", err))
	}
	return hashWithDomain(DomainAchievement, canonical)
}

// PayloadHash hashes the canonical form of an outbox payload.
func PayloadHash(payload any) (string, error) {
	canonical, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("PayloadHash: %w", err)
	}
	return hashWithDomain(DomainPayload, canonical), nil
}
