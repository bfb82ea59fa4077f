package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/database/dbtest"
)

func TestMarkEventProcessed_SecondInsertLoses(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)

	created, err := repo.MarkEventProcessed("evt_1", EventSubscriptionUpdated)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.MarkEventProcessed("evt_1", EventSubscriptionUpdated)
	require.NoError(t, err)
	assert.False(t, created)

	seen, err := repo.EventProcessed("evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	var n int64
	require.NoError(t, db.Model(&models.ProcessedBillingEvent{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestMarkEventProcessed_InsideTransaction(t *testing.T) {
	db := dbtest.Open(t)
	require.NoError(t, db.Create(&models.ProcessedBillingEvent{ID: "evt_2", Type: EventInvoicePaymentFailed}).Error)

	var created bool
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = NewRepository(tx).MarkEventProcessed("evt_2", EventInvoicePaymentFailed)
		return err
	})
	require.NoError(t, err)
	assert.False(t, created)

	seen, err := NewRepository(db).EventProcessed("evt_3")
	require.NoError(t, err)
	assert.False(t, seen)
}
