// Package tokenlist holds the allow-list of recognized SPL token mints.
// Token sub-accounts are only surfaced during synchronization when their
// mint is on this list; unrecognized mints are silently skipped.
package tokenlist

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Token describes one recognized mint. Decimals live on the mint account on
// chain, but carrying them here saves an RPC round trip per sub-account.
type Token struct {
	Mint     solana.PublicKey
	Symbol   string
	Decimals uint8
}

// Registry is an immutable lookup of recognized tokens keyed by mint.
type Registry struct {
	byMint map[solana.PublicKey]Token
}

// NewRegistry builds a registry from the given tokens.
func NewRegistry(tokens ...Token) *Registry {
	byMint := make(map[solana.PublicKey]Token, len(tokens))
	for _, t := range tokens {
		byMint[t.Mint] = t
	}
	return &Registry{byMint: byMint}
}

// Default returns the registry of well-known mainnet tokens.
func Default() *Registry {
	return NewRegistry(
		Token{
			Mint:     solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),
			Symbol:   "USDC",
			Decimals: 6,
		},
		Token{
			Mint:     solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"),
			Symbol:   "USDT",
			Decimals: 6,
		},
	)
}

// Parse builds a registry from "mint:symbol:decimals" entries, the format
// the KNOWN_TOKEN_MINTS environment variable uses.
func Parse(entries []string) (*Registry, error) {
	tokens := make([]Token, 0, len(entries))
	for _, entry := range entries {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid token entry %q: want mint:symbol:decimals", entry)
		}
		mint, err := solana.PublicKeyFromBase58(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid mint in token entry %q: %w", entry, err)
		}
		decimals, err := strconv.ParseUint(parts[2], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid decimals in token entry %q: %w", entry, err)
		}
		tokens = append(tokens, Token{
			Mint:     mint,
			Symbol:   parts[1],
			Decimals: uint8(decimals),
		})
	}
	return NewRegistry(tokens...), nil
}

// Lookup returns the token for mint, if recognized.
func (r *Registry) Lookup(mint solana.PublicKey) (Token, bool) {
	t, ok := r.byMint[mint]
	return t, ok
}

// Recognized reports whether mint is on the allow-list.
func (r *Registry) Recognized(mint solana.PublicKey) bool {
	_, ok := r.byMint[mint]
	return ok
}
