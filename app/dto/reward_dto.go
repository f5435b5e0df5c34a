package dto

// ClaimRewardRequest redeems one spin on a reward log for the given reward
type ClaimRewardRequest struct {
	RewardID string `json:"reward_id" validate:"required,max=64"`
}

// UpdateRewardStatusRequest moves a collected reward through fulfilment
type UpdateRewardStatusRequest struct {
	Status string `json:"status" validate:"required,max=20"`
}
