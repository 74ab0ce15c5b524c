package model

// CompetitiveTier is one rank in the latest competitive tier set.
type CompetitiveTier struct {
	Tier      int    `json:"tier"`
	Name      string `json:"name"`
	SmallIcon string `json:"small_icon"`
}

// Agent is a playable character.
type Agent struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// CompetitiveSeason is a ranked act with rank borders.
type CompetitiveSeason struct {
	ID       string `json:"id"`
	SeasonID string `json:"season_id"`
}

// MatchPlayer is a participant of an in-progress match.
type MatchPlayer struct {
	Subject      string `json:"subject"`
	Team         string `json:"team"`
	AgentID      string `json:"agent_id"`
	AccountLevel int    `json:"account_level"`
}

// PlayerName is a resolved player display name.
type PlayerName struct {
	Subject  string `json:"subject"`
	GameName string `json:"game_name"`
	TagLine  string `json:"tag_line"`
}

// CompetitiveUpdate is the result of a player's latest ranked match.
type CompetitiveUpdate struct {
	SeasonID        string `json:"season_id"`
	TierAfterUpdate int    `json:"tier_after_update"`
}

// PlayerOverview is one row of a match overview.
type PlayerOverview struct {
	Subject        string `json:"subject"`
	GameName       string `json:"game_name"`
	TagLine        string `json:"tag_line"`
	Agent          string `json:"agent"`
	AccountLevel   int    `json:"account_level"`
	CurrentTier    string `json:"current_tier"`
	LastSeasonTier string `json:"last_season_tier"`
}

// TeamOverview groups the players of one side.
type TeamOverview struct {
	Team    string           `json:"team"`
	Allied  bool             `json:"allied"`
	Players []PlayerOverview `json:"players"`
}

// MatchOverview is the current match as seen by one user.
type MatchOverview struct {
	MatchID string         `json:"match_id"`
	Teams   []TeamOverview `json:"teams"`
}
