package roles

import (
	"github.com/oakroles/discord-bot/internal/content"
	"github.com/oakroles/discord-bot/internal/nk"
)

// Proxy thresholds. The API exposes no direct ranks or per-map data, so
// medal counts stand in for them. All comparisons are inclusive.
const (
	fastMonkeyDoubleGold   = 50
	fastMonkeyBlackDiamond = 10
	fastMonkeyGoldDiamond  = 50

	bossSlayerBlackDiamond = 20

	advancedCompletionistChimps = 25
)

// Results holds one boolean per qualification rule
type Results struct {
	FastMonkey            bool
	BossSlayer            bool
	ExpertCompletionist   bool
	AdvancedCompletionist bool
	Grandmaster           bool
	TheDartLord           bool
	AllAchievements       bool
}

// Evaluate runs every rule against the snapshot set. Single-account rules
// read the latest snapshot (last element); aggregate rules read them all.
// An empty set qualifies for nothing.
func Evaluate(snapshots []*nk.Player, limits content.Limits) Results {
	if len(snapshots) == 0 {
		return Results{}
	}

	latest := snapshots[len(snapshots)-1]

	return Results{
		FastMonkey:            checkFastMonkey(latest),
		BossSlayer:            checkBossSlayer(latest),
		ExpertCompletionist:   checkExpertCompletionist(latest, limits),
		AdvancedCompletionist: checkAdvancedCompletionist(snapshots),
		Grandmaster:           checkGrandmaster(latest, limits),
		TheDartLord:           checkTheDartLord(latest, limits),
		AllAchievements:       checkAllAchievements(latest, limits),
	}
}

// checkFastMonkey approximates "race rank <= 50" from race medal counts
func checkFastMonkey(p *nk.Player) bool {
	race := p.MedalsRace
	return race[nk.MedalDoubleGold] >= fastMonkeyDoubleGold ||
		(race[nk.MedalBlackDiamond] >= fastMonkeyBlackDiamond &&
			race[nk.MedalGoldDiamond] >= fastMonkeyGoldDiamond)
}

// checkBossSlayer approximates "boss rank <= 3" from boss medal counts
func checkBossSlayer(p *nk.Player) bool {
	return p.MedalsBoss[nk.MedalBlackDiamond] >= bossSlayerBlackDiamond
}

// checkExpertCompletionist approximates "black CHIMPS on every map": a
// solo black-CHIMPS count covering all known maps.
func checkExpertCompletionist(p *nk.Player, limits content.Limits) bool {
	return p.SoloChimpsBlack() >= limits.TotalMaps
}

// checkAdvancedCompletionist sums solo black-CHIMPS medals across all of
// the identity's linked accounts.
func checkAdvancedCompletionist(snapshots []*nk.Player) bool {
	total := 0
	for _, p := range snapshots {
		total += p.SoloChimpsBlack()
	}
	return total >= advancedCompletionistChimps
}

// checkGrandmaster approximates "black border on every map". The check is
// currently identical to ExpertCompletionist; the two are kept separate
// so they can diverge once per-map data is available.
func checkGrandmaster(p *nk.Player, limits content.Limits) bool {
	return p.SoloChimpsBlack() >= limits.TotalMaps
}

// checkTheDartLord requires full black-CHIMPS coverage in both solo and
// co-op play.
func checkTheDartLord(p *nk.Player, limits content.Limits) bool {
	return p.SoloChimpsBlack() >= limits.TotalMaps &&
		p.CoopChimpsBlack() >= limits.TotalMaps
}

// checkAllAchievements requires every known achievement unlocked
func checkAllAchievements(p *nk.Player, limits content.Limits) bool {
	return p.Achievements >= limits.TotalAchievements
}
