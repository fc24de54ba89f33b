package services

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"kitchenline/server/internal/models"
)

// ThresholdService getThresholds(tenant) и мутатор
type ThresholdService struct {
	store    ThresholdStore
	branchID string
	defaults models.BottleneckThreshold
	validate *validator.Validate
}

// NewThresholdService создает сервис порогов. defaults используются, если в БД нет строки по умолчанию.
func NewThresholdService(store ThresholdStore, branchID string, defaults models.BottleneckThreshold) *ThresholdService {
	defaults.BranchID = branchID
	defaults.StationID = nil
	return &ThresholdService{
		store:    store,
		branchID: branchID,
		defaults: defaults,
		validate: validator.New(),
	}
}

// GetThresholds пороги филиала: default + переопределения по станциям
func (ts *ThresholdService) GetThresholds(ctx context.Context) (models.ThresholdSet, error) {
	set := models.ThresholdSet{
		Default:    ts.defaults,
		PerStation: make(map[string]models.BottleneckThreshold),
	}
	rows, err := ts.store.GetThresholds(ctx, ts.branchID)
	if err != nil {
		return set, fmt.Errorf("get thresholds: %w", err)
	}
	for _, row := range rows {
		if row.StationID == nil || *row.StationID == "" {
			set.Default = row
			continue
		}
		set.PerStation[*row.StationID] = row
	}
	return set, nil
}

// SetThreshold сохраняет пороги (StationID == nil - пороги по умолчанию)
func (ts *ThresholdService) SetThreshold(ctx context.Context, th models.BottleneckThreshold) (models.BottleneckThreshold, error) {
	if err := ts.validate.Struct(th); err != nil {
		return th, fmt.Errorf("%w: %v", ErrInvalidThreshold, err)
	}
	th.BranchID = ts.branchID
	if th.StationID != nil && *th.StationID == "" {
		th.StationID = nil
	}
	if th.ID == "" {
		// Одна строка на (филиал, станция): ID детерминирован
		key := ts.branchID + ":default"
		if th.StationID != nil {
			key = ts.branchID + ":" + *th.StationID
		}
		th.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
	}
	if err := ts.store.SaveThreshold(ctx, th); err != nil {
		return th, fmt.Errorf("save threshold: %w", err)
	}
	return th, nil
}
