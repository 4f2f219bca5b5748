package domain

import (
	"strings"

	"github.com/mr-tron/base58"
)

// Chains whose addresses and transaction hashes are base58-encoded
// ed25519 material rather than 0x-hex.
var base58Chains = map[string]bool{
	"solana": true,
}

// ValidAddress reports whether addr is plausibly well-formed for chain.
// EVM chains use 0x-prefixed 20-byte hex; base58 chains use 32-byte keys.
// Providers drop events with malformed addresses before emission.
func ValidAddress(chain, addr string) bool {
	if base58Chains[strings.ToLower(chain)] {
		raw, err := base58.Decode(addr)
		return err == nil && len(raw) == 32
	}
	return isHex(addr, 20)
}

// ValidTxHash reports whether hash is plausibly well-formed for chain.
// EVM transaction hashes are 32-byte hex; base58 chains use 64-byte signatures.
func ValidTxHash(chain, hash string) bool {
	if base58Chains[strings.ToLower(chain)] {
		raw, err := base58.Decode(hash)
		return err == nil && len(raw) == 64
	}
	return isHex(hash, 32)
}

// isHex checks for a 0x-prefixed hex string encoding exactly n bytes.
func isHex(s string, n int) bool {
	if len(s) != 2+2*n || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
