package utils

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const MIN_SECRET_LENGTH = 32

// Signer mints and checks pass verification tokens.
// A token is hex(HMAC-SHA256(secret, id "\n" startTime)); it is minted once per pass and never rotated.
type Signer struct {
	secret []byte
	// dummy is compared against when a scanned id matches no pass, so unknown ids cost the same as known ones.
	dummy string
}

func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) < MIN_SECRET_LENGTH {
		return nil, fmt.Errorf("pass token secret must be at least %d bytes", MIN_SECRET_LENGTH)
	}
	s := &Signer{secret: append([]byte(nil), secret...)}
	s.dummy = s.Token("00000000-0000-0000-0000-000000000000", time.Unix(0, 0))
	return s, nil
}

func (s *Signer) Token(id string, startTime time.Time) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(id))
	mac.Write([]byte("\n"))
	mac.Write([]byte(startTime.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Matches compares a scanned hash with the stored token in constant time.
func (s *Signer) Matches(stored, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(strings.ToLower(candidate))) == 1
}

// MatchesNothing burns one comparison for a scan whose id is unknown. It always reports false.
func (s *Signer) MatchesNothing(candidate string) bool {
	subtle.ConstantTimeCompare([]byte(s.dummy), []byte(candidate))
	return false
}

func GenerateSecret() ([]byte, error) {
	b := make([]byte, MIN_SECRET_LENGTH)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// QRPayload is the JSON text encoded into a pass QR code and posted back by the scanner.
type QRPayload struct {
	ID   string `json:"id"`
	Hash string `json:"hash"`
}

func EncodePayload(id, hash string) (string, error) {
	b, err := json.Marshal(QRPayload{ID: id, Hash: hash})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodePayload(text string) (*QRPayload, error) {
	var payload QRPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &payload); err != nil {
		return nil, fmt.Errorf("malformed pass code: %w", err)
	}
	if payload.ID == "" || payload.Hash == "" {
		return nil, errors.New("malformed pass code: id and hash are required")
	}
	return &payload, nil
}
