package dto

import "time"

type CreateCampaignRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	GoalTON     string    `json:"goal_ton"`
	DeadlineAt  time.Time `json:"deadline_at"`
}

type DonateRequest struct {
	AmountTON string `json:"amount_ton"`
}

type RefundRequest struct {
	CampaignID string `json:"campaign_id,omitempty"` // optional, defaults to the receipt's campaign
}

type SetNameRequest struct {
	Name string `json:"name"`
}
