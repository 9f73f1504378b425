package catalog

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/go-faster/errors"
)

const (
	// skuAlphabet is the uppercase base36 alphabet used for SKU suffixes.
	skuAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// skuSuffixLen gives ~2.2e9 suffixes per shop/category pair, so a
	// pre-insert collision is vanishingly rare at realistic shop sizes.
	skuSuffixLen = 6
	// maxSKUAttempts bounds both the allocator's generate-then-check loop and
	// the service's insert retries.
	maxSKUAttempts = 10
)

// SKUExistsFunc reports whether a candidate SKU is already taken.
type SKUExistsFunc func(ctx context.Context, sku string) (bool, error)

// SKUAllocator generates per-shop unique stock-keeping identifiers of the
// form SHP<shop>-CAT<category>-<suffix>. The randomness source is injected
// so tests can pin exact sequences; access to it is serialized because
// allocations run concurrently across requests.
//
// The allocator only minimizes retries. The database's partial unique index
// on (shop_id, sku) is the actual uniqueness guarantee; callers must treat
// ErrSKUTaken from the insert as a signal to allocate again.
type SKUAllocator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSKUAllocator creates an allocator drawing suffixes from src.
func NewSKUAllocator(src rand.Source) *SKUAllocator {
	return &SKUAllocator{rng: rand.New(src)}
}

// Allocate produces a SKU that is not currently taken according to exists.
// It retries fresh candidates on collision, up to maxSKUAttempts, then fails
// with ErrSKUAllocationExhausted.
func (a *SKUAllocator) Allocate(ctx context.Context, shopID, categoryID int64, exists SKUExistsFunc) (string, error) {
	for attempt := 0; attempt < maxSKUAttempts; attempt++ {
		sku := a.generate(shopID, categoryID)

		taken, err := exists(ctx, sku)
		if err != nil {
			return "", errors.Wrap(err, "check sku")
		}
		if !taken {
			return sku, nil
		}
	}
	return "", ErrSKUAllocationExhausted
}

func (a *SKUAllocator) generate(shopID, categoryID int64) string {
	var suffix [skuSuffixLen]byte

	a.mu.Lock()
	for i := range suffix {
		suffix[i] = skuAlphabet[a.rng.IntN(len(skuAlphabet))]
	}
	a.mu.Unlock()

	return fmt.Sprintf("SHP%d-CAT%d-%s", shopID, categoryID, suffix[:])
}
