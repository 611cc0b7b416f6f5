package agentid

import "strings"

// Normalize canonicalizes built-in agent names and their aliases. Unknown
// names are returned lowercased and dash-separated.
func Normalize(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.Trim(normalized, "-")
	if normalized == "" {
		return ""
	}
	for _, candidate := range aliasCandidates(normalized) {
		if canonical, ok := canonicalAgentName(candidate); ok {
			return canonical
		}
	}
	return normalized
}

func aliasCandidates(normalized string) []string {
	candidates := []string{normalized}
	trimmed := strings.Trim(strings.TrimSuffix(strings.TrimPrefix(normalized, "agent-"), "-agent"), "-")
	if trimmed != "" && trimmed != normalized {
		candidates = append(candidates, trimmed)
	}
	return candidates
}

func canonicalAgentName(alias string) (string, bool) {
	switch strings.ReplaceAll(alias, "-", "") {
	case "random", "rand", "uniform":
		return "random", true
	case "idle", "noop", "zero":
		return "idle", true
	case "forward", "straight":
		return "forward", true
	case "waypointleft", "wpleft", "left":
		return "waypoint-left", true
	case "waypointright", "wpright", "right":
		return "waypoint-right", true
	default:
		return "", false
	}
}
