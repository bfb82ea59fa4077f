package billing

import (
	"errors"
	"strings"

	"github.com/ManuelReschke/LabelFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	EventProcessed(eventID string) (bool, error)
	MarkEventProcessed(eventID, eventType string) (bool, error)
	FindWorkspace(id string) (*models.Workspace, error)
	FindWorkspaceIDBySubscription(subscriptionID string) (string, error)
	FindWorkspaceIDByCustomer(customerID string) (string, error)
	UpdateWorkspaceBilling(workspaceID string, updates map[string]interface{}) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM. Pass a
// transaction handle to scope all calls to it.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) EventProcessed(eventID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.ProcessedBillingEvent{}).Where("id = ?", eventID).Count(&count).Error
	return count > 0, err
}

// MarkEventProcessed inserts the event marker and reports whether this call
// created it.
func (r *gormRepository) MarkEventProcessed(eventID, eventType string) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&models.ProcessedBillingEvent{ID: eventID, Type: eventType})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// FindWorkspace returns nil without error when the workspace does not exist.
func (r *gormRepository) FindWorkspace(id string) (*models.Workspace, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var ws models.Workspace
	if err := r.db.Where("id = ?", id).First(&ws).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ws, nil
}

func (r *gormRepository) FindWorkspaceIDBySubscription(subscriptionID string) (string, error) {
	return r.findWorkspaceID("stripe_subscription_id = ?", subscriptionID)
}

func (r *gormRepository) FindWorkspaceIDByCustomer(customerID string) (string, error) {
	return r.findWorkspaceID("stripe_customer_id = ?", customerID)
}

func (r *gormRepository) findWorkspaceID(query string, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	var ws models.Workspace
	err := r.db.Select("id").Where(query, value).Order("created_at ASC").First(&ws).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return ws.ID, nil
}

func (r *gormRepository) UpdateWorkspaceBilling(workspaceID string, updates map[string]interface{}) error {
	return r.db.Model(&models.Workspace{}).Where("id = ?", workspaceID).Updates(updates).Error
}
