// Package validation provides filtering and validation mechanisms for token list records.
package validation

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/router-providers/internal/model"
)

// ValidationOptions holds configuration for the validation process
type ValidationOptions struct {
	// ChainID restricts records to one network; zero keeps every chain
	ChainID uint64

	// MaxDecimals is the largest decimals value accepted
	MaxDecimals int

	// MaxSymbolLength bounds the symbol; token lists cap it at 20 characters
	MaxSymbolLength int

	// RequireName drops records without a name
	RequireName bool

	// Deduplicate keeps only the first record per chain and address
	Deduplicate bool
}

// DefaultValidationOptions returns sensible defaults for validation
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		MaxDecimals:     255,
		MaxSymbolLength: 20,
		Deduplicate:     true,
	}
}

// FilterInvalid removes token records that fail basic validation criteria.
// This is the main entrypoint for the validation package.
func FilterInvalid(records []model.TokenInfo) []model.TokenInfo {
	return FilterInvalidWithOptions(records, DefaultValidationOptions())
}

// FilterInvalidWithOptions removes records with custom validation options.
func FilterInvalidWithOptions(records []model.TokenInfo, opts ValidationOptions) []model.TokenInfo {
	valid := filterBasicCriteria(records, opts)
	if opts.Deduplicate {
		return dedupe(valid)
	}
	return valid
}

// FilterInvalidConcurrently performs validation in parallel for large lists.
// Order of the surviving records is preserved.
func FilterInvalidConcurrently(records []model.TokenInfo, opts ValidationOptions) []model.TokenInfo {
	if len(records) < 1000 {
		return FilterInvalidWithOptions(records, opts)
	}

	workerCount := 4
	chunkSize := (len(records) + workerCount - 1) / workerCount
	parts := make([][]model.TokenInfo, workerCount)
	wg := sync.WaitGroup{}

	for i := 0; i < workerCount; i++ {
		start := i * chunkSize
		if start >= len(records) {
			break
		}
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}

		wg.Add(1)
		go func(i int, chunk []model.TokenInfo) {
			defer wg.Done()
			parts[i] = filterBasicCriteria(chunk, opts)
		}(i, records[start:end])
	}
	wg.Wait()

	var valid []model.TokenInfo
	for _, part := range parts {
		valid = append(valid, part...)
	}
	if opts.Deduplicate {
		return dedupe(valid)
	}
	return valid
}

// filterBasicCriteria applies fundamental validation rules to each record
func filterBasicCriteria(records []model.TokenInfo, opts ValidationOptions) []model.TokenInfo {
	valid := make([]model.TokenInfo, 0, len(records))
	for _, r := range records {
		if reason := invalidReason(r, opts); reason != "" {
			logrus.WithFields(logrus.Fields{
				"chainId": r.ChainID,
				"address": r.Address,
				"symbol":  r.Symbol,
				"reason":  reason,
			}).Debug("Filtered invalid token record")
			continue
		}
		valid = append(valid, r)
	}
	return valid
}

// invalidReason returns why r fails validation, or "" when it passes
func invalidReason(r model.TokenInfo, opts ValidationOptions) string {
	if r.ChainID == 0 {
		return "missing chain id"
	}
	if opts.ChainID != 0 && r.ChainID != opts.ChainID {
		return "other chain"
	}
	if !common.IsHexAddress(r.Address) {
		return "malformed address"
	}
	if common.HexToAddress(r.Address) == (common.Address{}) {
		return "zero address"
	}
	if r.Decimals < 0 || r.Decimals > opts.MaxDecimals {
		return "decimals out of range"
	}
	symbol := strings.TrimSpace(r.Symbol)
	if symbol == "" {
		return "empty symbol"
	}
	if opts.MaxSymbolLength > 0 && len(symbol) > opts.MaxSymbolLength {
		return "symbol too long"
	}
	if opts.RequireName && strings.TrimSpace(r.Name) == "" {
		return "empty name"
	}
	return ""
}

type tokenKey struct {
	chainID uint64
	address common.Address
}

// dedupe keeps the first record for every chain and address
func dedupe(records []model.TokenInfo) []model.TokenInfo {
	seen := make(map[tokenKey]struct{}, len(records))
	out := make([]model.TokenInfo, 0, len(records))
	for _, r := range records {
		k := tokenKey{chainID: r.ChainID, address: common.HexToAddress(r.Address)}
		if _, dup := seen[k]; dup {
			logrus.WithFields(logrus.Fields{
				"chainId": r.ChainID,
				"address": r.Address,
			}).Debug("Dropped duplicate token record")
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// ToToken converts a validated record into the domain token
func ToToken(r model.TokenInfo) model.Token {
	return model.Token{
		ChainID:  r.ChainID,
		Address:  common.HexToAddress(r.Address),
		Symbol:   strings.TrimSpace(r.Symbol),
		Name:     r.Name,
		Decimals: uint8(r.Decimals),
		LogoURI:  r.LogoURI,
	}
}
