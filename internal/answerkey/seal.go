package answerkey

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quiz-access-service/internal/domain"
)

// Sealer encrypts an ephemeral grading key into an opaque token that the client hands back with its
// submission. The token is bound to the quiz and viewer and expires after ttl.
type Sealer struct {
	aead cipher.AEAD
	ttl  time.Duration
	now  func() time.Time
}

type sealedKey struct {
	ExpiresAt time.Time         `json:"exp"`
	Questions []domain.Question `json:"questions"`
}

func NewSealer(secret string, ttl time.Duration) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("answer key secret is empty")
	}
	sum := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead, ttl: ttl, now: time.Now}, nil
}

// NewSealerWithClock is test-only for deterministic expiry.
func NewSealerWithClock(secret string, ttl time.Duration, now func() time.Time) (*Sealer, error) {
	s, err := NewSealer(secret, ttl)
	if err != nil {
		return nil, err
	}
	s.now = now
	return s, nil
}

func (s *Sealer) Seal(quizID, viewerID string, key []domain.Question) (string, error) {
	plain, err := json.Marshal(sealedKey{ExpiresAt: s.now().Add(s.ttl), Questions: key})
	if err != nil {
		return "", fmt.Errorf("marshal key: %w", err)
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, plain, binding(quizID, viewerID))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open returns the grading key sealed for this quiz and viewer, or domain.ErrInvalidKeyToken.
func (s *Sealer) Open(token, quizID, viewerID string) ([]domain.Question, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) < s.aead.NonceSize() {
		return nil, domain.ErrInvalidKeyToken
	}
	nonce, body := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, body, binding(quizID, viewerID))
	if err != nil {
		return nil, domain.ErrInvalidKeyToken
	}
	var key sealedKey
	if err := json.Unmarshal(plain, &key); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidKeyToken, err)
	}
	if s.now().After(key.ExpiresAt) {
		return nil, fmt.Errorf("%w: expired", domain.ErrInvalidKeyToken)
	}
	return key.Questions, nil
}

func binding(quizID, viewerID string) []byte {
	return []byte(quizID + "\x00" + viewerID)
}
