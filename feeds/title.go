package feeds

import (
	"fmt"
	"strings"
	"time"

	"clawfeed/models"
)

// All rendered timestamps target Singapore time. A fixed zone avoids a
// dependency on the host tzdata.
var sgt = time.FixedZone("SGT", 8*60*60)

var digestIcons = map[string]string{
	models.Digest4h:      "☀️",
	models.DigestDaily:   "📰",
	models.DigestWeekly:  "📅",
	models.DigestMonthly: "📊",
}

var digestLabels = map[string]string{
	models.Digest4h:      "AI 简报",
	models.DigestDaily:   "AI 日报",
	models.DigestWeekly:  "AI 周报",
	models.DigestMonthly: "AI 月报",
}

// DigestTitle renders the user-facing title for a digest, e.g.
// "📰 AI 日报 | 2024-01-01 09:00 SGT".
func DigestTitle(d models.Digest) string {
	icon, ok := digestIcons[d.Type]
	if !ok {
		icon = "📝"
	}
	label, ok := digestLabels[d.Type]
	if !ok {
		label = "ClawFeed"
	}
	ts := parseDigestTime(d.CreatedAt).In(sgt).Format("2006-01-02 15:04")
	return fmt.Sprintf("%s %s | %s SGT", icon, label, ts)
}

var offsetLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// parseDigestTime interprets a stored timestamp. Values without an explicit
// offset are assumed to already be in the target timezone. Malformed values
// never fail feed rendering; they collapse to the current time.
func parseDigestTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "+") || strings.HasSuffix(s, "Z") {
		for _, layout := range offsetLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, sgt); err == nil {
			return t
		}
	}
	return time.Now().In(sgt)
}
