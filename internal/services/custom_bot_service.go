package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"guardian-api/internal/database"
	"guardian-api/internal/licensing"
	"guardian-api/internal/models"
	"guardian-api/pkg/logging"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CustomBotService tracks private bot deployments sold as CUSTOM_BOT
type CustomBotService struct {
	db    *gorm.DB
	now   func() time.Time
	newID func() string
}

// NewCustomBotService creates a new custom bot service
func NewCustomBotService(db *gorm.DB) *CustomBotService {
	return &CustomBotService{
		db:    db,
		now:   time.Now,
		newID: randomDeploymentID,
	}
}

// randomDeploymentID returns CB- followed by 12 hex digits of a random UUID
func randomDeploymentID() string {
	return "CB-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// provision records the deployment for a confirmed CUSTOM_BOT payment.
// It runs inside the confirming transaction.
func (s *CustomBotService) provision(tx *gorm.DB, payment *models.PaymentTransaction) (*models.CustomBot, error) {
	features := licensing.Features(models.TierExclusive)
	enabled := make(datatypes.JSONSlice[string], len(features))
	for i, f := range features {
		enabled[i] = string(f)
	}

	id := s.newID()
	bot := &models.CustomBot{
		DeploymentID:    id,
		CustomerID:      payment.UserID,
		TransactionID:   payment.TransactionID,
		BotName:         "CustomBot-" + id,
		Status:          models.CustomBotActive,
		FeaturesEnabled: enabled,
	}
	if err := database.CreateCustomBot(tx, bot); err != nil {
		return nil, storeError("create custom bot", err)
	}
	return bot, nil
}

// GetForCustomer returns a deployment owned by customerID. Deployments of
// other customers are reported as not found.
func (s *CustomBotService) GetForCustomer(ctx context.Context, deploymentID string, customerID int64) (*models.CustomBot, error) {
	bot, err := database.GetCustomerCustomBot(s.db.WithContext(ctx), strings.TrimSpace(deploymentID), customerID)
	if err != nil {
		return nil, storeError("get custom bot", err)
	}
	return bot, nil
}

// Get returns a deployment by id
func (s *CustomBotService) Get(ctx context.Context, deploymentID string) (*models.CustomBot, error) {
	bot, err := database.GetCustomBot(s.db.WithContext(ctx), strings.TrimSpace(deploymentID))
	if err != nil {
		return nil, storeError("get custom bot", err)
	}
	return bot, nil
}

// ListForCustomer returns a customer's deployments, newest first
func (s *CustomBotService) ListForCustomer(ctx context.Context, customerID int64) ([]models.CustomBot, error) {
	bots, err := database.ListCustomBots(s.db.WithContext(ctx), customerID)
	if err != nil {
		return nil, storeError("list custom bots", err)
	}
	return bots, nil
}

// CustomBotUpdate is a partial change made by staff during setup.
// Nil fields are left unchanged.
type CustomBotUpdate struct {
	BotName          *string `json:"bot_name"`
	Status           *string `json:"status"`
	SetupCompleted   *bool   `json:"setup_completed"`
	CustomerNotified *bool   `json:"customer_notified"`
	DeploymentNotes  *string `json:"deployment_notes"`
}

func (u CustomBotUpdate) columns() (map[string]interface{}, error) {
	cols := make(map[string]interface{})
	if u.BotName != nil {
		name := strings.TrimSpace(*u.BotName)
		if name == "" || len(name) > 100 {
			return nil, fmt.Errorf("%w: bot name must be 1-100 characters", ErrInvalidInput)
		}
		cols["bot_name"] = name
	}
	if u.Status != nil {
		status := strings.ToUpper(strings.TrimSpace(*u.Status))
		switch status {
		case models.CustomBotActive, models.CustomBotSuspended, models.CustomBotTerminated:
		default:
			return nil, fmt.Errorf("%w: unknown deployment status %q", ErrInvalidInput, *u.Status)
		}
		cols["status"] = status
	}
	if u.SetupCompleted != nil {
		cols["setup_completed"] = *u.SetupCompleted
	}
	if u.CustomerNotified != nil {
		cols["customer_notified"] = *u.CustomerNotified
	}
	if u.DeploymentNotes != nil {
		cols["deployment_notes"] = strings.TrimSpace(*u.DeploymentNotes)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	return cols, nil
}

// Update applies a staff change. TERMINATED deployments are frozen.
func (s *CustomBotService) Update(ctx context.Context, deploymentID string, u CustomBotUpdate) (*models.CustomBot, error) {
	cols, err := u.columns()
	if err != nil {
		return nil, err
	}
	if err := database.UpdateCustomBot(s.db.WithContext(ctx), deploymentID, cols); err != nil {
		return nil, storeError("update custom bot", err)
	}
	logging.Infof("Custom bot updated - deployment: %s", deploymentID)
	return s.Get(ctx, deploymentID)
}

// Heartbeat stamps the deployment as online now
func (s *CustomBotService) Heartbeat(ctx context.Context, deploymentID string) error {
	err := database.UpdateCustomBot(s.db.WithContext(ctx), deploymentID, map[string]interface{}{
		"last_online": s.now(),
	})
	return storeError("custom bot heartbeat", err)
}
