package nk

// Medal map keys used by the qualification rules
const (
	MedalDoubleGold   = "DoubleGold"
	MedalGoldDiamond  = "GoldDiamond"
	MedalBlackDiamond = "BlackDiamond"

	// Solo/co-op medal for a black-border CHIMPS completion
	MedalChimpsBlack = "CHIMPS-BLACK"
)

// Player is a snapshot of one account from the Ninja Kiwi open-data API.
// Medal maps may be absent for fresh accounts; reads of nil maps yield zero.
type Player struct {
	DisplayName  string `json:"displayName"`
	Rank         int    `json:"rank"`
	VeteranRank  int    `json:"veteranRank"`
	Achievements int    `json:"achievements"`

	// Anti-tamper flags set by the upstream service
	Cheater bool `json:"cheater"`
	Modded  bool `json:"modded"`

	MedalsBoss         map[string]int `json:"_medalsBoss"`
	MedalsRace         map[string]int `json:"_medalsRace"`
	MedalsSinglePlayer map[string]int `json:"_medalsSinglePlayer"`
	MedalsMultiplayer  map[string]int `json:"_medalsMultiplayer"`

	Gameplay struct {
		HighestRound       int `json:"highestRound"`
		HighestRoundCHIMPS int `json:"highestRoundCHIMPS"`
	} `json:"gameplay"`
}

// Flagged reports whether the upstream service has flagged this account.
// A flagged account blocks role computation for the whole identity.
func (p *Player) Flagged() bool {
	return p.Cheater || p.Modded
}

// SoloChimpsBlack returns the solo black-CHIMPS medal count
func (p *Player) SoloChimpsBlack() int {
	return p.MedalsSinglePlayer[MedalChimpsBlack]
}

// CoopChimpsBlack returns the co-op black-CHIMPS medal count
func (p *Player) CoopChimpsBlack() int {
	return p.MedalsMultiplayer[MedalChimpsBlack]
}
