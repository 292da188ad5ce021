// Package ledger records pipeline runs and depth reports in a SQL database.
package ledger

import (
	"sync"

	"github.com/khaes-kth/drr-execdiff/internal/contract"
)

// LedgerStoreManager guards the process-wide ledger store.
type LedgerStoreManager struct {
	sync.RWMutex // Protects the store pointer during initialization
	store        contract.LedgerStore
}

var _ contract.LedgerManager = &LedgerStoreManager{} // Compile-time check

// GetLedgerStore returns the ledger store, or nil before InitLedger.
func (mgr *LedgerStoreManager) GetLedgerStore() contract.LedgerStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.store
}
