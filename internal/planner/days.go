package planner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DaysPerPlan is the number of "# Jour N" sections a nutrition plan carries.
const DaysPerPlan = 7

var dayMarkerRe = regexp.MustCompile(`(?m)^#[ \t]+Jour[ \t]+(\d+)`)

type dayMarker struct {
	start, end int
	number     int
}

func findDayMarkers(text string) []dayMarker {
	var markers []dayMarker
	for _, loc := range dayMarkerRe.FindAllStringSubmatchIndex(text, -1) {
		n, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		markers = append(markers, dayMarker{start: loc[0], end: loc[1], number: n})
	}
	return markers
}

// RepairDayMarkers normalizes the day headers of a generated nutrition plan.
// Text before "# Jour 1" (or before the first day header when that one is
// missing) is dropped. Then, for each day 1..7 without an exact header, the
// last surplus header (out of range or repeating an earlier number) is
// relabeled. A header that is the only holder of a valid day is never
// rewritten, so a truncated plan keeps its days and simply stays short.
// Only the "# Jour N" prefix of a header line is rewritten.
func RepairDayMarkers(text string) string {
	markers := findDayMarkers(text)
	if len(markers) == 0 {
		return text
	}

	cut := markers[0].start
	for _, m := range markers {
		if m.number == 1 {
			cut = m.start
			break
		}
	}
	text = text[cut:]

	for day := 1; day <= DaysPerPlan; day++ {
		markers = findDayMarkers(text)
		if hasDay(markers, day) {
			continue
		}
		target := surplusMarker(markers)
		if target < 0 {
			break
		}
		m := markers[target]
		text = text[:m.start] + fmt.Sprintf("# Jour %d", day) + text[m.end:]
	}

	return strings.TrimSpace(text)
}

func hasDay(markers []dayMarker, day int) bool {
	for _, m := range markers {
		if m.number == day {
			return true
		}
	}
	return false
}

// surplusMarker returns the index of the last marker that is out of range or
// repeats a number already seen earlier, or -1.
func surplusMarker(markers []dayMarker) int {
	seen := make(map[int]int)
	last := -1
	for i, m := range markers {
		seen[m.number]++
		if m.number < 1 || m.number > DaysPerPlan || seen[m.number] > 1 {
			last = i
		}
	}
	return last
}
