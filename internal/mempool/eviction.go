package mempool

import "github.com/qchain-project/qchain/pkg/params"

// EvictExpired removes every transaction older than params.ExpirySecs as
// measured against now (unix seconds), returning the count evicted.
func (p *Pool) EvictExpired(now int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	evicted := 0
	for hash, e := range p.byHash {
		if now-e.addedAt > params.ExpirySecs {
			p.removeLocked(hash)
			evicted++
		}
	}
	return evicted
}
