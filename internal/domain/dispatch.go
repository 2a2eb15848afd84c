package domain

// DeliveryOutcome aggregates one dispatch call. It is returned to the caller
// and never persisted; per-token errors are folded into the counts.
type DeliveryOutcome struct {
	Sent                 int `json:"sent"`
	Failed               int `json:"failed"`
	TotalUsers           int `json:"total_users"`
	InvalidTokensRemoved int `json:"invalid_tokens_removed"`
}
