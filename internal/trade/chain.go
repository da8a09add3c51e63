package trade

import "strings"

const (
	TagERoot = "e_root"
	TagEPrev = "e_prev"
	TagD     = "d"
	TagA     = "a"
)

// PushChainTags appends e_root, then e_prev and d when non-empty.
func PushChainTags(tags [][]string, rootID, prevID, tradeID string) [][]string {
	tags = append(tags, []string{TagERoot, rootID})
	if prevID != "" {
		tags = append(tags, []string{TagEPrev, prevID})
	}
	if tradeID != "" {
		tags = append(tags, []string{TagD, tradeID})
	}
	return tags
}

// ValidateChain requires a non-blank e_root and d tag. Tags are scanned in
// order and the first malformed one is reported.
func ValidateChain(tags [][]string) error {
	var hasRoot, hasD bool
	for _, t := range tags {
		if len(t) == 0 {
			continue
		}
		switch t[0] {
		case TagERoot:
			if len(t) < 2 || strings.TrimSpace(t[1]) == "" {
				return InvalidChainTag(TagERoot)
			}
			hasRoot = true
		case TagD:
			if len(t) < 2 || strings.TrimSpace(t[1]) == "" {
				return InvalidChainTag(TagD)
			}
			hasD = true
		}
		if hasRoot && hasD {
			return nil
		}
	}
	if !hasRoot {
		return MissingChainTag(TagERoot)
	}
	return MissingChainTag(TagD)
}
