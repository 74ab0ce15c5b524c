package upstream

import "encoding/json"

// Public catalog service payloads.

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type versionData struct {
	ManifestID string `json:"manifestId"`
}

type skinLevel struct {
	UUID        string `json:"uuid"`
	DisplayIcon string `json:"displayIcon"`
}

type skinData struct {
	DisplayName     string      `json:"displayName"`
	ContentTierUUID *string     `json:"contentTierUuid"`
	Levels          []skinLevel `json:"levels"`
}

type contentTierData struct {
	UUID        string `json:"uuid"`
	DevName     string `json:"devName"`
	DisplayIcon string `json:"displayIcon"`
}

type competitiveTierData struct {
	Tier      int    `json:"tier"`
	TierName  string `json:"tierName"`
	SmallIcon string `json:"smallIcon"`
}

type competitiveTierSet struct {
	UUID  string                `json:"uuid"`
	Tiers []competitiveTierData `json:"tiers"`
}

type agentData struct {
	UUID        string `json:"uuid"`
	DisplayName string `json:"displayName"`
}

type competitiveSeasonData struct {
	UUID       string          `json:"uuid"`
	SeasonUUID string          `json:"seasonUuid"`
	Borders    json.RawMessage `json:"borders"`
}

// Authenticated game service payloads.

type errorBody struct {
	HTTPStatus int    `json:"httpStatus"`
	ErrorCode  string `json:"errorCode"`
	Message    string `json:"message"`
}

type offersResponse struct {
	Offers []struct {
		OfferID string         `json:"OfferID"`
		Cost    map[string]int `json:"Cost"`
	} `json:"Offers"`
}

type storefrontResponse struct {
	SkinsPanelLayout struct {
		SingleItemOffers                           []string `json:"SingleItemOffers"`
		SingleItemOffersRemainingDurationInSeconds int      `json:"SingleItemOffersRemainingDurationInSeconds"`
	} `json:"SkinsPanelLayout"`
}

type walletResponse struct {
	Balances map[string]int `json:"Balances"`
}

type currentPlayerResponse struct {
	MatchID string `json:"MatchID"`
}

type matchResponse struct {
	Players []struct {
		Subject        string `json:"Subject"`
		TeamID         string `json:"TeamID"`
		CharacterID    string `json:"CharacterID"`
		PlayerIdentity struct {
			AccountLevel int `json:"AccountLevel"`
		} `json:"PlayerIdentity"`
	} `json:"Players"`
}

type nameServiceEntry struct {
	Subject  string `json:"Subject"`
	GameName string `json:"GameName"`
	TagLine  string `json:"TagLine"`
}

type competitiveUpdatesResponse struct {
	Matches []struct {
		SeasonID        string `json:"SeasonID"`
		TierAfterUpdate int    `json:"TierAfterUpdate"`
	} `json:"Matches"`
}

type mmrResponse struct {
	QueueSkills struct {
		Competitive struct {
			SeasonalInfoBySeasonID map[string]struct {
				CompetitiveTier int `json:"CompetitiveTier"`
			} `json:"SeasonalInfoBySeasonID"`
		} `json:"competitive"`
	} `json:"QueueSkills"`
}
