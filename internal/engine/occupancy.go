package engine

import (
	"context"
	"strings"

	"qms/turn-service/internal/metrics"
	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"
)

func (e *Engine) AssignResource(ctx context.Context, input store.AssignInput) (models.Occupancy, error) {
	input.PatientName = strings.TrimSpace(input.PatientName)
	input.PatientSurname = strings.TrimSpace(input.PatientSurname)
	var occ models.Occupancy
	err := store.ValidateAssign(input)
	if err == nil {
		err = e.run(ctx, "assign_resource", func(ctx context.Context) error {
			var err error
			occ, err = e.store.AssignResource(ctx, input)
			return err
		})
	}
	metrics.Occupancy.WithLabelValues("assign", resultOf(err)).Inc()
	if err != nil {
		return models.Occupancy{}, err
	}
	e.logger.Debug().Str("resource_id", occ.ResourceID).Str("actor", input.Actor).Msg("resource assigned")
	return occ, nil
}

func (e *Engine) UpdateOccupancy(ctx context.Context, input store.UpdateOccupancyInput) (models.Occupancy, error) {
	var occ models.Occupancy
	err := store.ValidateOccupancyPatch(input)
	if err == nil {
		err = e.run(ctx, "update_occupancy", func(ctx context.Context) error {
			var err error
			occ, err = e.store.UpdateOccupancy(ctx, input)
			return err
		})
	}
	metrics.Occupancy.WithLabelValues("update", resultOf(err)).Inc()
	if err != nil {
		return models.Occupancy{}, err
	}
	return occ, nil
}

// ReleaseResource ends the occupancy and returns the history row written
// for it.
func (e *Engine) ReleaseResource(ctx context.Context, input store.ReleaseInput) (models.ResourceHistory, error) {
	var history models.ResourceHistory
	err := store.ValidateRelease(input)
	if err == nil {
		err = e.run(ctx, "release_resource", func(ctx context.Context) error {
			var err error
			history, err = e.store.ReleaseResource(ctx, input)
			return err
		})
	}
	metrics.Occupancy.WithLabelValues("release", resultOf(err)).Inc()
	if err != nil {
		return models.ResourceHistory{}, err
	}
	e.logger.Debug().
		Str("resource_id", history.ResourceID).
		Str("outcome", history.Outcome).
		Int("duration_minutes", history.DurationMinutes).
		Msg("resource released")
	return history, nil
}

func (e *Engine) DeactivateResource(ctx context.Context, resourceID string) (models.Resource, error) {
	var resource models.Resource
	var err error
	if strings.TrimSpace(resourceID) == "" {
		err = store.Validation("resource_id is required")
	} else {
		err = e.run(ctx, "deactivate_resource", func(ctx context.Context) error {
			var err error
			resource, err = e.store.DeactivateResource(ctx, resourceID)
			return err
		})
	}
	metrics.Occupancy.WithLabelValues("deactivate", resultOf(err)).Inc()
	if err != nil {
		return models.Resource{}, err
	}
	return resource, nil
}
