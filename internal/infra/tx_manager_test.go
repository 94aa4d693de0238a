package infra

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	dbm "payflow/internal/models/db_models"
)

func memoryDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenMemory(strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return db
}

func TestTxManagerRollsBackOnError(t *testing.T) {
	db := memoryDB(t)
	tm := NewTxManager(db)

	err := tm.Exec(context.Background(), func(ctx context.Context) error {
		if err := Conn(ctx, db).Create(&dbm.Product{Name: "P", Stock: 1}).Error; err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&dbm.Product{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTxManagerNestedExecJoinsOuter(t *testing.T) {
	db := memoryDB(t)
	tm := NewTxManager(db)

	err := tm.Exec(context.Background(), func(ctx context.Context) error {
		return tm.Exec(ctx, func(inner context.Context) error {
			return Conn(inner, db).Create(&dbm.Product{Name: "P", Stock: 1}).Error
		})
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&dbm.Product{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestOpenTransactionIndexAllowsOnlyOneOpenPerOrder(t *testing.T) {
	db := memoryDB(t)
	orderID := uuid.New()

	open := func(id string, status dbm.TransactionStatus) error {
		return db.Create(&dbm.Transaction{
			TransactionID: id,
			OrderID:       orderID,
			CustomerID:    uuid.New(),
			AmountMinor:   10_000,
			Status:        status,
		}).Error
	}

	require.NoError(t, open("TXN-1", dbm.TxnStatusFailed))
	require.NoError(t, open("TXN-2", dbm.TxnStatusPending))
	err := open("TXN-3", dbm.TxnStatusProcessing)
	require.Error(t, err)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}
