package listing

import "strings"

// cleanValue trims v and drops it when empty or the literal "null".
func cleanValue(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "null") {
		return "", false
	}
	return v, true
}

func cleanPtr(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	return cleanValue(*v)
}

func setIfEmpty(dst *string, tag []string) {
	if strings.TrimSpace(*dst) != "" || len(tag) < 2 {
		return
	}
	if v, ok := cleanValue(tag[1]); ok {
		*dst = v
	}
}

func setOptional(dst **string, tag []string) {
	if *dst != nil || len(tag) < 2 {
		return
	}
	if v, ok := cleanValue(tag[1]); ok {
		*dst = &v
	}
}

func cleanedAt(tag []string, i int) *string {
	if i >= len(tag) {
		return nil
	}
	if v, ok := cleanValue(tag[i]); ok {
		return &v
	}
	return nil
}
