package session

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

const (
	codeMin         = 100000
	codeSpan        = 900000
	maxCodeAttempts = 5
)

// randomCode returns a uniform 6-digit code in [100000, 999999].
func randomCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		// crypto/rand failure: fall back to the clock
		return strconv.FormatInt(codeMin+time.Now().UnixNano()%codeSpan, 10)
	}
	return strconv.FormatInt(codeMin+n.Int64(), 10)
}

// allocateCode draws codes until one is free. Caller holds s.mu.
func (s *Service) allocateCode() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		c := s.codes()
		if !validCode(c) {
			continue
		}
		if _, taken := s.rooms[c]; !taken {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrCodeExhausted, maxCodeAttempts)
}

func validCode(c string) bool {
	if len(c) != 6 {
		return false
	}
	n, err := strconv.Atoi(c)
	return err == nil && n >= codeMin && n < codeMin+codeSpan
}
