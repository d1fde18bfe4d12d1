package api

import (
	"fmt"
	"strings"

	"visitnav/internal/model"
)

func validatePlaceRequest(req *model.PlaceRequest) error {
	if strings.TrimSpace(req.Client) == "" {
		return fmt.Errorf("client is required")
	}
	if req.Order < 0 {
		return fmt.Errorf("order must be >= 0; use the block endpoint to exclude a client")
	}
	return nil
}

func validateBlockRequest(req *model.BlockRequest) error {
	if strings.TrimSpace(req.Client) == "" {
		return fmt.Errorf("client is required")
	}
	return nil
}

func validateMoveRequest(req *model.MoveRequest) (from, to model.Weekday, err error) {
	if strings.TrimSpace(req.Client) == "" {
		return 0, 0, fmt.Errorf("client is required")
	}
	from, err = model.ParseWeekday(req.FromDay)
	if err != nil {
		return 0, 0, fmt.Errorf("fromDay: %w", err)
	}
	to, err = model.ParseWeekday(req.ToDay)
	if err != nil {
		return 0, 0, fmt.Errorf("toDay: %w", err)
	}
	if from == to {
		return 0, 0, fmt.Errorf("fromDay and toDay must differ")
	}
	if req.NewOrder < 0 {
		return 0, 0, fmt.Errorf("newOrder must be >= 0")
	}
	return from, to, nil
}

func validateSubscriptionRequest(req *model.SubscriptionRequest) error {
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		return fmt.Errorf("url must be http(s)")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("at least one event type is required")
	}
	return nil
}
