// Package idgen produces sortable record identifiers: the base-36 Unix
// millisecond timestamp, a hyphen, and a base-36 random suffix.
package idgen

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"
)

const (
	separator = "-"
	suffixLen = 8
	alphabet  = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var (
	nowFn    = time.Now
	randRead = rand.Read
)

// New returns a fresh identifier such as "m1x2k3p4-7f3k9q2a".
func New() string {
	return strconv.FormatInt(nowFn().UnixMilli(), 36) + separator + suffix()
}

func suffix() string {
	var buf [suffixLen]byte
	if _, err := randRead(buf[:]); err != nil {
		panic(err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf[:])
}

// Valid reports whether id has the expected shape. It is a format check only.
func Valid(id string) bool {
	return id != "" && strings.Contains(id, separator)
}

// Timestamp decodes the creation instant embedded in id.
func Timestamp(id string) (time.Time, bool) {
	prefix, _, found := strings.Cut(id, separator)
	if !found || prefix == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(prefix, 36, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
