package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/khaes-kth/drr-execdiff/schema"
)

// Global Manager instance for main logic.
var (
	Manager   = &LedgerStoreManager{}
	initOnce  sync.Once
	closeOnce sync.Once
)

// GetDBFilePath returns the path to the SQLite DB file for the ledger.
func GetDBFilePath() string {
	return contract.GetLedgerDBFilePath()
}

// InitLedger initializes the global ledger store.
func InitLedger(backend schema.DatabaseBackend, connStr string) error {
	var initErr error

	initOnce.Do(func() {
		store, err := NewLedgerStore(backend, connStr)
		if err != nil {
			initErr = fmt.Errorf("failed to initialize execution ledger: %w", err)
			return
		}
		Manager.Lock()
		Manager.store = store
		Manager.Unlock()
	})

	return initErr
}

// CloseLedger should be called on application shutdown.
func CloseLedger() { // called in main defer
	closeOnce.Do(func() {
		Manager.Lock()
		defer Manager.Unlock()
		if Manager.store != nil {
			_ = Manager.store.Close()
		}
	})
}

// ClearLedger removes every recorded batch.
// For SQLite, it deletes the database file.
// For SQL backends (MySQL/PostgreSQL), it drops the ledger tables.
// For NoneBackend, it does nothing.
func ClearLedger(backend schema.DatabaseBackend, dbFilePath, connStr string) error {
	switch backend {
	case schema.SQLiteBackend:
		if dbFilePath == "" {
			return fmt.Errorf("dbFilePath cannot be empty for SQLite backend")
		}
		if err := os.Remove(dbFilePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove SQLite database file %s: %w", dbFilePath, err)
		}
		return nil

	case schema.MySQLBackend:
		return dropTables("mysql", backend, connStr)

	case schema.PostgreSQLBackend:
		return dropTables("pgx", backend, connStr)

	case schema.NoneBackend:
		return nil

	default:
		return fmt.Errorf("unsupported ledger backend for clearing: %s", backend)
	}
}

// dropTables connects to the SQL database and drops the ledger tables, children first.
func dropTables(driverName string, backend schema.DatabaseBackend, connStr string) error {
	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s database: %w", driverName, err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping %s database: %w", driverName, err)
	}

	for _, table := range []string{depthStatsTable, runsTable, batchesTable} {
		query := fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteTableName(table, backend))
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}
