package utils

import (
	"hash/fnv"
	"math/rand/v2"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is lower than for passwords: invite tokens are random and short lived.
const BcryptCost = 10

// NewInviteToken returns a fresh partner invite token and its bcrypt hash.
func NewInviteToken() (token string, hash string, err error) {
	token = uuid.NewString()
	hash, err = HashToken(token)
	return token, hash, err
}

func HashToken(token string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(token), BcryptCost)
	return string(bytes), err
}

func CheckTokenHash(token, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	return err == nil
}

// NewSeededRand returns a deterministic generator for seed. The same seed
// always yields the same sequence.
func NewSeededRand(seed string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	s := h.Sum64()
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}
