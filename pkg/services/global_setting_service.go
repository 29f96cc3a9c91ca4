package services

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/codeready-toolchain/deepsoc/ent/globalsetting"
)

// DrivingModeKey is the GlobalSetting key gating whether role workers
// auto-advance rounds or wait for a human.
const DrivingModeKey = "driving_mode"

// DrivingModeAuto and DrivingModeManual are the only valid driving_mode
// values.
const (
	DrivingModeAuto   = "auto"
	DrivingModeManual = "manual"
)

// GlobalSettingService manages small pieces of singleton state.
type GlobalSettingService struct {
	client *ent.Client
}

// NewGlobalSettingService creates a new GlobalSettingService.
func NewGlobalSettingService(client *ent.Client) *GlobalSettingService {
	return &GlobalSettingService{client: client}
}

// Get retrieves a setting's value, or "" if it does not exist.
func (s *GlobalSettingService) Get(ctx context.Context, key string) (string, error) {
	setting, err := s.client.GlobalSetting.Query().Where(globalsetting.KeyEQ(key)).Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return setting.Value, nil
}

// Set creates or updates a setting's value.
func (s *GlobalSettingService) Set(ctx context.Context, key, value string) error {
	err := s.client.GlobalSetting.Create().
		SetKey(key).
		SetValue(value).
		OnConflictColumns(globalsetting.FieldKey).
		UpdateNewValues().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// DrivingMode returns the current driving mode, defaulting to auto when
// unset.
func (s *GlobalSettingService) DrivingMode(ctx context.Context) (string, error) {
	mode, err := s.Get(ctx, DrivingModeKey)
	if err != nil {
		return "", err
	}
	if mode == "" {
		return DrivingModeAuto, nil
	}
	return mode, nil
}
