package pricing

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
)

type poolKey struct {
	venue  string
	token0 common.Address
	token1 common.Address
	fee    uint32
}

type poolEntry struct {
	key  poolKey
	pool common.Address
}

type decimalsEntry struct {
	token    common.Address
	decimals uint8
}

// AddressCache remembers resolved pool addresses and token decimals. Both are
// deterministic, so entries never expire and concurrent duplicate writes are harmless.
type AddressCache struct {
	pools    *lru.Cache
	decimals *lru.Cache
}

// NewAddressCache creates a cache holding up to size pools and size tokens
func NewAddressCache(size int) (*AddressCache, error) {
	pools, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool cache: %w", err)
	}
	decimals, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create decimals cache: %w", err)
	}
	return &AddressCache{pools: pools, decimals: decimals}, nil
}

func newPoolKey(venue string, tokenA, tokenB common.Address, fee uint32) poolKey {
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		tokenA, tokenB = tokenB, tokenA
	}
	return poolKey{venue: venue, token0: tokenA, token1: tokenB, fee: fee}
}

func (k poolKey) hash() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(k.venue)
	_, _ = d.Write(k.token0.Bytes())
	_, _ = d.Write(k.token1.Bytes())
	var fee [4]byte
	binary.BigEndian.PutUint32(fee[:], k.fee)
	_, _ = d.Write(fee[:])
	return d.Sum64()
}

// Pool returns the cached pool for venue/pair/fee. Token order does not matter.
func (c *AddressCache) Pool(venue string, tokenA, tokenB common.Address, fee uint32) (common.Address, bool) {
	key := newPoolKey(venue, tokenA, tokenB, fee)
	v, ok := c.pools.Get(key.hash())
	if !ok {
		return common.Address{}, false
	}
	entry := v.(poolEntry)
	if entry.key != key {
		return common.Address{}, false
	}
	return entry.pool, true
}

// AddPool records a resolved pool
func (c *AddressCache) AddPool(venue string, tokenA, tokenB common.Address, fee uint32, pool common.Address) {
	key := newPoolKey(venue, tokenA, tokenB, fee)
	c.pools.Add(key.hash(), poolEntry{key: key, pool: pool})
}

// Decimals returns cached token decimals
func (c *AddressCache) Decimals(token common.Address) (uint8, bool) {
	v, ok := c.decimals.Get(xxhash.Sum64(token.Bytes()))
	if !ok {
		return 0, false
	}
	entry := v.(decimalsEntry)
	if entry.token != token {
		return 0, false
	}
	return entry.decimals, true
}

// AddDecimals records token decimals
func (c *AddressCache) AddDecimals(token common.Address, decimals uint8) {
	c.decimals.Add(xxhash.Sum64(token.Bytes()), decimalsEntry{token: token, decimals: decimals})
}

// Len returns the number of cached pools
func (c *AddressCache) Len() int {
	return c.pools.Len()
}
