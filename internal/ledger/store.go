package ledger

import "fmt"

// RecordStore holds the Config/Market/Bet records, keyed by their
// deterministic composite keys. Creation rejects an existing key; lookups
// reject a missing one. Records are never deleted.
//
// Not thread-safe: only the single-threaded core mutates it.
type RecordStore struct {
	config  *Config
	markets map[Seed]*Market
	bets    map[BetKey]*Bet
}

func NewRecordStore() *RecordStore {
	return &RecordStore{
		markets: make(map[Seed]*Market),
		bets:    make(map[BetKey]*Bet),
	}
}

// CreateConfig installs the singleton. Fails if one already exists.
func (s *RecordStore) CreateConfig(cfg *Config) error {
	if s.config != nil {
		return fmt.Errorf("%s: %w", ConfigKeyPath, ErrRecordExists)
	}
	s.config = cfg
	return nil
}

// Config returns the singleton, or ErrRecordNotFound before initialization.
func (s *RecordStore) Config() (*Config, error) {
	if s.config == nil {
		return nil, fmt.Errorf("%s: %w", ConfigKeyPath, ErrRecordNotFound)
	}
	return s.config, nil
}

// CreateMarket installs a market keyed by its seed.
func (s *RecordStore) CreateMarket(m *Market) error {
	if _, ok := s.markets[m.Seed]; ok {
		return fmt.Errorf("market %s: %w", m.Seed, ErrRecordExists)
	}
	s.markets[m.Seed] = m
	return nil
}

// Market returns the market for a seed.
func (s *RecordStore) Market(seed Seed) (*Market, error) {
	m, ok := s.markets[seed]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", seed, ErrRecordNotFound)
	}
	return m, nil
}

// CreateBet installs a bet keyed by (owner, market, nonce).
func (s *RecordStore) CreateBet(b *Bet) error {
	key := b.Key()
	if _, ok := s.bets[key]; ok {
		return fmt.Errorf("%s: %w", key.Path(), ErrRecordExists)
	}
	s.bets[key] = b
	return nil
}

// Bet returns the bet for a composite key.
func (s *RecordStore) Bet(key BetKey) (*Bet, error) {
	b, ok := s.bets[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key.Path(), ErrBetNotFound)
	}
	return b, nil
}

// AllMarkets returns every market record, for snapshots and invariant sweeps.
func (s *RecordStore) AllMarkets() []*Market {
	out := make([]*Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	return out
}

// AllBets returns every bet record.
func (s *RecordStore) AllBets() []*Bet {
	out := make([]*Bet, 0, len(s.bets))
	for _, b := range s.bets {
		out = append(out, b)
	}
	return out
}

// RestoreConfig reinstalls the singleton during snapshot recovery.
func (s *RecordStore) RestoreConfig(cfg *Config) {
	s.config = cfg
}

// RestoreMarket reinstalls a market during snapshot recovery.
func (s *RecordStore) RestoreMarket(m *Market) {
	s.markets[m.Seed] = m
}

// RestoreBet reinstalls a bet during snapshot recovery.
func (s *RecordStore) RestoreBet(b *Bet) {
	s.bets[b.Key()] = b
}
