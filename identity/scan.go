package identity

import (
	"context"
	"sync"
)

// ScanReport aggregates one best-effort owner scan across every configured
// network. A failure on one network never aborts the others; the report is
// produced only after every network has either answered or failed.
type ScanReport struct {
	// Registrations lists every identity the owner holds, across all
	// networks that answered.
	Registrations []Reference

	// Errors maps chain id to the failure that prevented scanning it.
	Errors map[uint64]error
}

// ScanOwner finds every registration held by owner on each configured chain
// that declares a default registry. One independent read sequence runs per
// network, concurrently.
func (r *Resolver) ScanOwner(ctx context.Context, owner string) ScanReport {
	report := ScanReport{Errors: make(map[uint64]error)}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for chainID, chain := range r.cfg.Chains {
		if chain.Registry == "" {
			continue
		}
		wg.Add(1)
		go func(chainID uint64, chain ChainConfig) {
			defer wg.Done()
			refs, err := r.scanChain(ctx, chainID, chain, owner)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Errors[chainID] = err
				return
			}
			report.Registrations = append(report.Registrations, refs...)
		}(chainID, chain)
	}
	wg.Wait()

	return report
}

func (r *Resolver) scanChain(ctx context.Context, chainID uint64, chain ChainConfig, owner string) ([]Reference, error) {
	caller, err := r.cfg.Dial(ctx, chain.Endpoint)
	if err != nil {
		return nil, err
	}

	balanceValue, err := caller.ReadField(ctx, chain.Registry, fnBalanceOf, owner)
	if err != nil {
		return nil, err
	}
	balance, err := asUint64(balanceValue)
	if err != nil {
		return nil, err
	}

	refs := make([]Reference, 0, balance)
	for i := uint64(0); i < balance; i++ {
		idValue, err := caller.ReadField(ctx, chain.Registry, fnTokenOfOwnerByIndex, owner, i)
		if err != nil {
			return nil, err
		}
		localID, err := asUint64(idValue)
		if err != nil {
			return nil, err
		}
		refs = append(refs, Reference{
			Namespace: "eip155",
			ChainID:   chainID,
			Registry:  chain.Registry,
			LocalID:   localID,
		})
	}
	return refs, nil
}
