package cache

import "fmt"

// Key grammar: {type}:{leagueId}:{seasonId}[:team:{clubId}][:extra].

func TableKey(leagueID, seasonID int) string {
	return fmt.Sprintf("table:%d:%d:full", leagueID, seasonID)
}

// TablePattern matches every cached view of one league-season table.
func TablePattern(leagueID, seasonID int) string {
	return fmt.Sprintf("table:%d:%d:*", leagueID, seasonID)
}

func TeamStatsKey(clubID, leagueID, seasonID int) string {
	return fmt.Sprintf("team_stats:%d:liga:%d:saison:%d", clubID, leagueID, seasonID)
}

// TeamStatsPattern matches the stats of every club in one league-season.
func TeamStatsPattern(leagueID, seasonID int) string {
	return fmt.Sprintf("team_stats:*:liga:%d:saison:%d", leagueID, seasonID)
}
