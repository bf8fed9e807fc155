package auth

// Scopes accepted by the reward API.
const (
	ScopeRewardsRead     = "rewards:read"
	ScopeRewardsClaim    = "rewards:claim"
	ScopeActivitiesWrite = "activities:write"
)
