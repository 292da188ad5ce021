package ledger

import (
	"time"

	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/khaes-kth/drr-execdiff/schema"
	"github.com/stretchr/testify/mock"
)

// MockLedgerManager is a mock implementation of LedgerManager for testing.
type MockLedgerManager struct {
	mock.Mock
}

var _ contract.LedgerManager = &MockLedgerManager{} // Compile-time check

// GetLedgerStore implements the LedgerManager interface.
func (m *MockLedgerManager) GetLedgerStore() contract.LedgerStore {
	ret := m.Called()
	store, _ := ret.Get(0).(contract.LedgerStore)
	return store
}

// MockLedgerStore is a mock implementation of LedgerStore for testing.
type MockLedgerStore struct {
	mock.Mock
}

var _ contract.LedgerStore = &MockLedgerStore{} // Compile-time check

// BeginBatch implements the LedgerStore interface.
func (m *MockLedgerStore) BeginBatch(kind schema.BatchKind, startTime time.Time, configParams map[string]any) (int64, error) {
	args := m.Called(kind, startTime, configParams)
	return args.Get(0).(int64), args.Error(1)
}

// EndBatch implements the LedgerStore interface.
func (m *MockLedgerStore) EndBatch(batchID int64, endTime time.Time, totalItems int) error {
	args := m.Called(batchID, endTime, totalItems)
	return args.Error(0)
}

// RecordRun implements the LedgerStore interface.
func (m *MockLedgerStore) RecordRun(batchID int64, rec schema.RunRecord) error {
	args := m.Called(batchID, rec)
	return args.Error(0)
}

// RecordDepthStatistics implements the LedgerStore interface.
func (m *MockLedgerStore) RecordDepthStatistics(batchID int64, corpusSize int, stats schema.DepthStatistics) error {
	args := m.Called(batchID, corpusSize, stats)
	return args.Error(0)
}

// GetStatus implements the LedgerStore interface.
func (m *MockLedgerStore) GetStatus() (schema.LedgerStatus, error) {
	args := m.Called()
	return args.Get(0).(schema.LedgerStatus), args.Error(1)
}

// GetAllBatches implements the LedgerStore interface.
func (m *MockLedgerStore) GetAllBatches() ([]schema.BatchRecord, error) {
	args := m.Called()
	records, _ := args.Get(0).([]schema.BatchRecord)
	return records, args.Error(1)
}

// GetAllRuns implements the LedgerStore interface.
func (m *MockLedgerStore) GetAllRuns() ([]schema.RunRow, error) {
	args := m.Called()
	rows, _ := args.Get(0).([]schema.RunRow)
	return rows, args.Error(1)
}

// GetAllDepthStats implements the LedgerStore interface.
func (m *MockLedgerStore) GetAllDepthStats() ([]schema.DepthStatsRow, error) {
	args := m.Called()
	rows, _ := args.Get(0).([]schema.DepthStatsRow)
	return rows, args.Error(1)
}

// Close implements the LedgerStore interface.
func (m *MockLedgerStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
