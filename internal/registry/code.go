package registry

import (
	"crypto/rand"
	"math/big"
)

// без 0/O и 1/I — код вводится руками
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const generatedCodeLen = 8

func NewActivationCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, generatedCodeLen)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}
