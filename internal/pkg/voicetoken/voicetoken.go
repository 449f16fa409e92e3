// Package voicetoken signs the short-lived tokens the voice gateway accepts
// for streaming answers.
package voicetoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMalformed = errors.New("voicetoken: malformed token")
	ErrSignature = errors.New("voicetoken: bad signature")
	ErrExpired   = errors.New("voicetoken: expired")
)

// Claims is the signed payload.
type Claims struct {
	InvitationID uuid.UUID `json:"inv"`
	InterviewID  uuid.UUID `json:"ivw"`
	Slot         int       `json:"slot"`
	QuestionID   string    `json:"qid"`
	ExpiresAt    int64     `json:"exp"`
	Nonce        string    `json:"n"`
}

var enc = base64.RawURLEncoding

// Sign returns base64url(payload) "." base64url(HMAC-SHA256(payload)).
func Sign(secret []byte, c Claims, ttl time.Duration, now time.Time) (string, error) {
	c.ExpiresAt = now.Add(ttl).Unix()
	if c.Nonce == "" {
		c.Nonce = uuid.NewString()
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	p := enc.EncodeToString(payload)
	return p + "." + enc.EncodeToString(mac(secret, []byte(p))), nil
}

// Verify checks signature and expiry and returns the claims.
func Verify(secret []byte, token string, now time.Time) (*Claims, error) {
	p, sig, ok := strings.Cut(token, ".")
	if !ok || p == "" || sig == "" {
		return nil, ErrMalformed
	}
	got, err := enc.DecodeString(sig)
	if err != nil {
		return nil, ErrMalformed
	}
	if !hmac.Equal(got, mac(secret, []byte(p))) {
		return nil, ErrSignature
	}
	payload, err := enc.DecodeString(p)
	if err != nil {
		return nil, ErrMalformed
	}
	var c Claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, ErrMalformed
	}
	if now.Unix() >= c.ExpiresAt {
		return nil, ErrExpired
	}
	return &c, nil
}

func mac(secret, msg []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(msg)
	return h.Sum(nil)
}
