package dto

import "github.com/crowdfund-ton/backend/internal/models"

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// DisplayAmounts are the nanoTON amounts of a view formatted in TON.
type DisplayAmounts struct {
	GoalTON           string `json:"goal_ton"`
	RaisedTON         string `json:"raised_ton"`
	TotalDonatedTON   string `json:"total_donated_ton"`
	TotalWithdrawnTON string `json:"total_withdrawn_ton"`
	TotalRefundedTON  string `json:"total_refunded_ton"`
	CurrentBalanceTON string `json:"current_balance_ton"`
}

func NewDisplayAmounts(c *models.Campaign, b models.ReconciledBalance) DisplayAmounts {
	balance := "-" + models.FormatTON(uint64(-b.CurrentBalance))
	if b.CurrentBalance >= 0 {
		balance = models.FormatTON(uint64(b.CurrentBalance))
	}
	return DisplayAmounts{
		GoalTON:           models.FormatTON(c.Goal),
		RaisedTON:         models.FormatTON(c.Raised),
		TotalDonatedTON:   models.FormatTON(b.TotalDonated),
		TotalWithdrawnTON: models.FormatTON(b.TotalWithdrawn),
		TotalRefundedTON:  models.FormatTON(b.TotalRefunded),
		CurrentBalanceTON: balance,
	}
}

type CampaignViewResponse struct {
	View    any            `json:"view"`
	Display DisplayAmounts `json:"display"`
}

type ListResponse struct {
	Items any `json:"items"`
	Total int `json:"total"`
}
