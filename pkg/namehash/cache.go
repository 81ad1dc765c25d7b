package namehash

import (
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
)

const defaultCacheSize = 1000

// Resolver memoizes NameHash for full dotted names.
type Resolver struct {
	cache *lru.Cache
}

func NewResolver(size int) (*Resolver, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Resolver{cache: cache}, nil
}

// Resolve returns the node id of name. Invalid names are never cached.
func (r *Resolver) Resolve(name string) (common.Hash, error) {
	if v, ok := r.cache.Get(name); ok {
		return v.(common.Hash), nil
	}
	node, err := NameHash(name)
	if err != nil {
		return common.Hash{}, err
	}
	r.cache.Add(name, node)
	return node, nil
}

// Len reports the number of cached names.
func (r *Resolver) Len() int {
	return r.cache.Len()
}
