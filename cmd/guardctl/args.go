package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"GuardVault/internal/wallet"
)

func parseAddress(s string) (wallet.Address, error) {
	a, err := wallet.ParseAddress(s)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}

	if a.IsZero() {
		return a, fmt.Errorf("invalid address %q: zero", s)
	}

	return a, nil
}

func parseCommitment(s string) (wallet.Commitment, error) {
	c, err := wallet.ParseCommitment(s)
	if err != nil {
		return c, fmt.Errorf("invalid commitment %q: %w", s, err)
	}

	return c, nil
}

func parseCommitments(args []string) ([]wallet.Commitment, error) {
	out := make([]wallet.Commitment, 0, len(args))

	for _, s := range args {
		c, err := parseCommitment(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	return out, nil
}

func parseHash(s string) (wallet.Hash, error) {
	h, err := wallet.ParseHash(s)
	if err != nil {
		return h, fmt.Errorf("invalid id %q: %w", s, err)
	}

	return h, nil
}

// parseAmount accepts a positive decimal amount.
func parseAmount(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	if n == 0 {
		return 0, fmt.Errorf("amount must be positive")
	}

	return n, nil
}

// parseBytes decodes an optional hex payload; a 0x prefix is accepted.
func parseBytes(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}

	return b, nil
}
