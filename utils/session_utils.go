package utils

import (
	"crypto/rand"
	"log"
	"math/big"
	"strconv"
	"time"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateSessionID returns an id of the form sess_<unix-ms>_<9 base36 chars>.
func GenerateSessionID(now time.Time) string {
	suffix := make([]byte, 9)
	radix := big.NewInt(int64(len(base36)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, radix)
		if err != nil {
			log.Printf("ERROR: Failed to generate random session suffix: %v", err)
			return "sess_" + strconv.FormatInt(now.UnixMilli(), 10) + "_fallback"
		}
		suffix[i] = base36[n.Int64()]
	}
	return "sess_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + string(suffix)
}
