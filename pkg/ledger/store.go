package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// Store persists the full ledger state in Pebble: balances, orders, the two
// lifecycle flag maps, the order/event counters, and the append-only event
// log. Each ledger operation commits as a single synced batch, so a restart
// reconstructs exactly the state of the last successful operation.
//
// Key layout:
//
//	b<token:20><user:20>  balance, big-endian big.Int bytes
//	o<id:8>               order record, JSON
//	c<id:8>               cancelled flag
//	f<id:8>               filled flag
//	e<seq:8>              event envelope, JSON
//	m:orders              order counter, uint64 BE
//	m:events              event counter, uint64 BE
type Store struct {
	db *pebble.DB
}

var (
	keyOrderCount = []byte("m:orders")
	keyEventCount = []byte("m:events")
)

// OpenStore opens (or creates) a Pebble database at path.
func OpenStore(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(32 << 20),
		MemTableSize: 16 << 20,
		MaxOpenFiles: 1000,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func balanceKey(token, user common.Address) []byte {
	k := make([]byte, 1+20+20)
	k[0] = 'b'
	copy(k[1:], token[:])
	copy(k[21:], user[:])
	return k
}

func idKey(prefix byte, id uint64) []byte {
	k := make([]byte, 9)
	k[0] = prefix
	binary.BigEndian.PutUint64(k[1:], id)
	return k
}

// state is the in-memory image loaded at startup and mutated by the Ledger
// under its mutex.
type state struct {
	balances   map[common.Address]map[common.Address]*big.Int
	orders     map[uint64]*Order
	cancelled  map[uint64]bool
	filled     map[uint64]bool
	orderCount uint64
	eventCount uint64
}

func newState() *state {
	return &state{
		balances:  make(map[common.Address]map[common.Address]*big.Int),
		orders:    make(map[uint64]*Order),
		cancelled: make(map[uint64]bool),
		filled:    make(map[uint64]bool),
	}
}

// Load reads the complete persisted state. The working set is small (it is
// mutated under a single mutex) so a full load keeps every query an
// in-memory lookup.
func (s *Store) Load() (*state, error) {
	st := newState()

	iter, err := s.db.NewIter(nil)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		switch {
		case key[0] == 'b' && len(key) == 41:
			var token, user common.Address
			copy(token[:], key[1:21])
			copy(user[:], key[21:41])
			amt := new(big.Int).SetBytes(iter.Value())
			m, ok := st.balances[token]
			if !ok {
				m = make(map[common.Address]*big.Int)
				st.balances[token] = m
			}
			m[user] = amt
		case key[0] == 'o' && len(key) == 9:
			var o Order
			if err := json.Unmarshal(iter.Value(), &o); err != nil {
				return nil, fmt.Errorf("decode order %d: %w", binary.BigEndian.Uint64(key[1:]), err)
			}
			st.orders[o.ID] = &o
		case key[0] == 'c' && len(key) == 9:
			st.cancelled[binary.BigEndian.Uint64(key[1:])] = true
		case key[0] == 'f' && len(key) == 9:
			st.filled[binary.BigEndian.Uint64(key[1:])] = true
		}
	}

	var err2 error
	if st.orderCount, err2 = s.counter(keyOrderCount); err2 != nil {
		return nil, err2
	}
	if st.eventCount, err2 = s.counter(keyEventCount); err2 != nil {
		return nil, err2
	}
	return st, nil
}

func (s *Store) counter(key []byte) (uint64, error) {
	data, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", key, err)
	}
	defer closer.Close()
	return binary.BigEndian.Uint64(data), nil
}

// commit atomically applies one ledger operation: touched balances, an
// optional new order, optional flag sets, and the operation's event. The
// batch is synced before the operation is acknowledged.
type commit struct {
	balances   []balanceWrite
	order      *Order
	orderCount uint64 // written when order != nil
	cancelled  uint64 // order id, 0 = none
	filled     uint64 // order id, 0 = none
	event      *Event
}

type balanceWrite struct {
	token, user common.Address
	amount      *big.Int
}

func (s *Store) apply(c *commit) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, bw := range c.balances {
		if err := batch.Set(balanceKey(bw.token, bw.user), bw.amount.Bytes(), nil); err != nil {
			return fmt.Errorf("stage balance: %w", err)
		}
	}
	if c.order != nil {
		data, err := json.Marshal(c.order)
		if err != nil {
			return fmt.Errorf("encode order: %w", err)
		}
		if err := batch.Set(idKey('o', c.order.ID), data, nil); err != nil {
			return fmt.Errorf("stage order: %w", err)
		}
		var cnt [8]byte
		binary.BigEndian.PutUint64(cnt[:], c.orderCount)
		if err := batch.Set(keyOrderCount, cnt[:], nil); err != nil {
			return fmt.Errorf("stage order counter: %w", err)
		}
	}
	if c.cancelled != 0 {
		if err := batch.Set(idKey('c', c.cancelled), []byte{1}, nil); err != nil {
			return fmt.Errorf("stage cancelled flag: %w", err)
		}
	}
	if c.filled != 0 {
		if err := batch.Set(idKey('f', c.filled), []byte{1}, nil); err != nil {
			return fmt.Errorf("stage filled flag: %w", err)
		}
	}
	if c.event != nil {
		data, err := json.Marshal(c.event)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		if err := batch.Set(idKey('e', c.event.Seq), data, nil); err != nil {
			return fmt.Errorf("stage event: %w", err)
		}
		var cnt [8]byte
		binary.BigEndian.PutUint64(cnt[:], c.event.Seq)
		if err := batch.Set(keyEventCount, cnt[:], nil); err != nil {
			return fmt.Errorf("stage event counter: %w", err)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Events replays the durable event log starting at seq from (inclusive,
// 1-based), returning at most limit events in emission order.
func (s *Store) Events(from uint64, limit int) ([]Event, error) {
	if from == 0 {
		from = 1
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: idKey('e', from),
		UpperBound: idKey('e', ^uint64(0)),
	})
	if err != nil {
		return nil, fmt.Errorf("replay events: %w", err)
	}
	defer iter.Close()

	var out []Event
	for iter.First(); iter.Valid() && (limit <= 0 || len(out) < limit); iter.Next() {
		var ev Event
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}
