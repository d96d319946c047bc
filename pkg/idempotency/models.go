package idempotency

import "time"

// IdempotencyKey is a stored Idempotency-Key with the request fingerprint and
// the cached response, enabling safe client retries of mutating calls
type IdempotencyKey struct {
	ID                 string `bson:"_id" json:"id"`
	Key                string `bson:"key" json:"key"`
	ServiceID          string `bson:"serviceId" json:"serviceId"`
	ActorID            string `bson:"actorId,omitempty" json:"actorId,omitempty"`
	RequestPath        string `bson:"requestPath" json:"requestPath"`
	RequestMethod      string `bson:"requestMethod" json:"requestMethod"`
	RequestFingerprint string `bson:"requestFingerprint" json:"requestFingerprint"`

	LockedAt *time.Time `bson:"lockedAt,omitempty" json:"lockedAt,omitempty"`

	ResponseCode int    `bson:"responseCode,omitempty" json:"responseCode,omitempty"`
	ResponseBody []byte `bson:"responseBody,omitempty" json:"responseBody,omitempty"`

	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	CompletedAt *time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	ExpiresAt   time.Time  `bson:"expiresAt" json:"expiresAt"`
}

// IsCompleted returns true if the request has been completed
func (ik *IdempotencyKey) IsCompleted() bool {
	return ik.CompletedAt != nil
}

// IsLocked returns true if the request is currently being processed
func (ik *IdempotencyKey) IsLocked() bool {
	return ik.LockedAt != nil && ik.CompletedAt == nil
}
