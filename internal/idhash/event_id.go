package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeEventID computes the deterministic identity of a transfer event
// using SHA256. Formula: SHA256(lower(chain)|lower(tx_hash)|lower(from)|lower(to))
// Returns hex-encoded hash (64 characters).
//
// Provenance, timestamps and amounts are deliberately excluded: two records
// of the same on-chain transfer from different providers must collide.
func ComputeEventID(chain, txHash, from, to string) string {
	data := strings.ToLower(fmt.Sprintf("%s|%s|%s|%s",
		chain,
		txHash,
		from,
		to,
	))

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
