package rand

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Salt returns 32 random bytes for a bid commitment.
func Salt() common.Hash {
	return common.BytesToHash(secureRandomBytes(common.HashLength))
}

// Nonce returns a random transfer permit nonce.
func Nonce() uint64 {
	return binary.BigEndian.Uint64(secureRandomBytes(8))
}

// secureRandomBytes returns the requested number of bytes using crypto/rand
func secureRandomBytes(length int) []byte {
	var randomBytes = make([]byte, length)
	_, err := rand.Read(randomBytes)
	if err != nil {
		logrus.Fatal("Unable to generate random bytes")
	}
	return randomBytes
}
