package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Seed is the immutable 32-byte identity of a market. All market, escrow,
// and bet keys derive from it deterministically.
type Seed [32]byte

// ParseSeed decodes a 64-character hex string into a Seed.
func ParseSeed(s string) (Seed, error) {
	var seed Seed
	raw, err := hex.DecodeString(s)
	if err != nil {
		return seed, fmt.Errorf("parse market seed: %w", err)
	}
	if len(raw) != len(seed) {
		return seed, fmt.Errorf("parse market seed: want %d bytes, got %d", len(seed), len(raw))
	}
	copy(seed[:], raw)
	return seed, nil
}

// SeedFromString derives a Seed by hashing an arbitrary identifier. Used by
// operators who name markets "NBA-2026-LAL-BOS" rather than minting raw seeds.
func SeedFromString(id string) Seed {
	return sha256.Sum256([]byte(id))
}

func (s Seed) String() string {
	return hex.EncodeToString(s[:])
}

// MarshalText encodes the seed as lowercase hex, so seeds embedded in logged
// instruction payloads round-trip through the ingestion parser on replay.
func (s Seed) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Seed) UnmarshalText(text []byte) error {
	parsed, err := ParseSeed(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ConfigKeyPath is the fixed store key of the deployment's Config singleton.
const ConfigKeyPath = "config"

// BetKey uniquely identifies a bet: the owner, the market, and a
// caller-supplied nonce that lets one user hold multiple concurrent bets
// against the same market.
type BetKey struct {
	Owner  uuid.UUID
	Market Seed
	Nonce  uint64
}

// Path returns the string form used in logs and projection rows.
func (k BetKey) Path() string {
	return fmt.Sprintf("bet:%s:%s:%d", k.Owner, k.Market, k.Nonce)
}

// AccountScope namespaces balance-book accounts.
type AccountScope uint8

const (
	ScopeUser AccountScope = iota
	ScopeEscrow
	ScopeFeeDestination
	ScopeExternal
)

// AccountID keys a balance in the escrow book. User accounts are keyed by the
// caller's identity; escrow accounts by the market seed; the fee destination
// by the identity configured at initialization.
type AccountID struct {
	Scope  AccountScope
	Entity [32]byte
}

// UserAccount returns the spendable account of a bettor or authority.
func UserAccount(id uuid.UUID) AccountID {
	var entity [32]byte
	copy(entity[:], id[:])
	return AccountID{Scope: ScopeUser, Entity: entity}
}

// EscrowAccount returns the pooled account holding a market's stakes.
func EscrowAccount(market Seed) AccountID {
	return AccountID{Scope: ScopeEscrow, Entity: market}
}

// FeeAccount returns the platform fee destination account.
func FeeAccount(id uuid.UUID) AccountID {
	var entity [32]byte
	copy(entity[:], id[:])
	return AccountID{Scope: ScopeFeeDestination, Entity: entity}
}

// ExternalAccount returns the synthetic source account of a confirmed
// deposit. Funds entering the book are recorded as transfers from here so
// every balance movement appears as a double-entry transfer row.
func ExternalAccount(source string) AccountID {
	return AccountID{Scope: ScopeExternal, Entity: sha256.Sum256([]byte(source))}
}

// Path returns the string representation for storage and logging.
func (a AccountID) Path() string {
	switch a.Scope {
	case ScopeUser:
		var id uuid.UUID
		copy(id[:], a.Entity[:16])
		return fmt.Sprintf("user:%s", id)
	case ScopeEscrow:
		return fmt.Sprintf("escrow:%s", hex.EncodeToString(a.Entity[:]))
	case ScopeFeeDestination:
		var id uuid.UUID
		copy(id[:], a.Entity[:16])
		return fmt.Sprintf("fees:%s", id)
	case ScopeExternal:
		return fmt.Sprintf("external:%s", hex.EncodeToString(a.Entity[:8]))
	}
	return "unknown"
}

// ParseAccountPath inverts Path for snapshot restore. External accounts are
// not parseable — their path truncates the entity — but they also never hold
// a balance, so they never appear in snapshots.
func ParseAccountPath(path string) (AccountID, error) {
	switch {
	case strings.HasPrefix(path, "user:"):
		id, err := uuid.Parse(strings.TrimPrefix(path, "user:"))
		if err != nil {
			return AccountID{}, fmt.Errorf("parse account path %q: %w", path, err)
		}
		return UserAccount(id), nil
	case strings.HasPrefix(path, "escrow:"):
		seed, err := ParseSeed(strings.TrimPrefix(path, "escrow:"))
		if err != nil {
			return AccountID{}, fmt.Errorf("parse account path %q: %w", path, err)
		}
		return EscrowAccount(seed), nil
	case strings.HasPrefix(path, "fees:"):
		id, err := uuid.Parse(strings.TrimPrefix(path, "fees:"))
		if err != nil {
			return AccountID{}, fmt.Errorf("parse account path %q: %w", path, err)
		}
		return FeeAccount(id), nil
	}
	return AccountID{}, fmt.Errorf("parse account path %q: unknown scope", path)
}

// EscrowCapability authorizes outbound transfers from exactly one market's
// escrow account. It is derived from the market seed, never from a private
// key, and is scoped to the native-currency balance of that market only.
type EscrowCapability struct {
	market Seed
	proof  [32]byte
}

// DeriveEscrowCapability computes the capability for a market's escrow.
func DeriveEscrowCapability(market Seed) EscrowCapability {
	h := sha256.New()
	h.Write([]byte("escrow"))
	h.Write(market[:])
	h.Write([]byte("native"))
	var proof [32]byte
	copy(proof[:], h.Sum(nil))
	return EscrowCapability{market: market, proof: proof}
}

// Covers reports whether the capability authorizes debits from the account.
func (c EscrowCapability) Covers(from AccountID) bool {
	if from.Scope != ScopeEscrow {
		return false
	}
	expect := DeriveEscrowCapability(Seed(from.Entity))
	return c.market == Seed(from.Entity) && c.proof == expect.proof
}
