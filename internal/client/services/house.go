package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/neighborwatch/internal/client/models"
	"github.com/dmitrijs2005/neighborwatch/internal/common"
	"github.com/dmitrijs2005/neighborwatch/internal/logging"
)

// HouseCheckpoint returns the checkpoint value printed on a member's house.
func HouseCheckpoint(memberID string) string {
	return "house:" + memberID
}

// HouseService backs the member's house screen.
type HouseService interface {
	// Save stores the member's address and makes sure the house has a
	// checkpoint. It returns the checkpoint value. Calling it again with
	// the same member never creates a second checkpoint.
	Save(ctx context.Context, memberID, houseNumber, streetAddress string) (string, error)
}

type houseService struct {
	tables Tables
	logger logging.Logger
	clock  clock
}

func NewHouseService(t Tables, logger logging.Logger) HouseService {
	return &houseService{tables: t, logger: logger.With("service", "house")}
}

func (s *houseService) Save(ctx context.Context, memberID, houseNumber, streetAddress string) (string, error) {
	if memberID == "" {
		return "", fmt.Errorf("save house: %w", common.ErrWrongRole)
	}
	houseNumber, streetAddress = strings.TrimSpace(houseNumber), strings.TrimSpace(streetAddress)
	if houseNumber == "" || streetAddress == "" {
		return "", fmt.Errorf("save house: %w: house number and street address are required", common.ErrInvalidArgument)
	}
	now := s.clock.now()

	err := s.tables.From(tableMembers).Eq("member_id", memberID).Update(ctx, map[string]any{
		"house_number":   houseNumber,
		"street_address": streetAddress,
		"updated_at":     now,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("save address: %w", err)
	}

	value := HouseCheckpoint(memberID)
	var existing models.QRCode
	found, err := s.tables.From(tableCheckpoints).Select("*").Eq("qr_code_value", value).Limit(1).MaybeSingle(ctx, &existing)
	if err != nil {
		// The upsert below is keyed on the value, so a failed lookup is not fatal.
		s.logger.Warn(ctx, "checkpoint lookup failed", "value", value, "error", err)
	}
	if found {
		return value, nil
	}

	err = s.tables.From(tableCheckpoints).Upsert(ctx, map[string]any{
		"qr_code_value":        value,
		"location_description": houseNumber + " " + streetAddress,
		"is_active":            true,
		"created_at":           now,
		"updated_at":           now,
	}, "qr_code_value", nil)
	if err != nil {
		return "", fmt.Errorf("create house checkpoint: %w", err)
	}
	s.logger.Info(ctx, "house checkpoint created", "value", value)
	return value, nil
}
