package holidays

import (
	"strconv"
	"strings"
	"time"

	"holidaybot/pkg/tgui"
)

const (
	DefaultDigestLimit = 10

	digestHeader = "🎉 Праздники на сегодня:"
	digestEmpty  = "🗓 Сегодня нет праздников."

	maxAnnotationRunes = 300
)

type markerRule struct {
	marker string
	match  func(lower string) bool
}

func anyOf(stems ...string) func(string) bool {
	return func(s string) bool {
		for _, stem := range stems {
			if strings.Contains(s, stem) {
				return true
			}
		}
		return false
	}
}

// First matching rule wins.
var markerRules = []markerRule{
	{"✝️", anyOf("рождеств", "пасх")},
	{"🎄", anyOf("нов", "ёлк")},
	{"🥳", anyOf("день рождения", "birthday")},
	{"🕯", anyOf("памяти", "вспомин")},
	{"🇷🇺", func(s string) bool { return strings.Contains(s, "день") && strings.Contains(s, "россии") }},
	{"🕊️", anyOf("мир")},
	{"💞", anyOf("люб")},
	{"🚀", anyOf("косм")},
	{"🛡️", anyOf("арм", "защитник")},
	{"👨‍👩‍👧", anyOf("семь")},
}

// Marker picks the decorative emoji for a holiday name.
func Marker(name string) string {
	lower := strings.ToLower(name)
	for _, r := range markerRules {
		if r.match(lower) {
			return r.marker
		}
	}
	return "✨"
}

// FormatDigest renders r for HTML parse mode: a header, at most limit
// entries, a remainder note and the annotation if set. An empty result keeps
// its annotation unless it only repeats that there are no holidays.
func FormatDigest(r Result, limit int) string {
	if !r.HasData() {
		if r.Error == "" || r.Error == TextNoHolidays {
			return digestEmpty
		}
		return digestEmpty + "\n\n" + annotation(r.Error)
	}
	if limit <= 0 {
		limit = DefaultDigestLimit
	}
	list := r.holidays
	visible := list[:min(limit, len(list))]

	var b strings.Builder
	b.WriteString(digestHeader)
	b.WriteString("\n")
	for _, name := range visible {
		b.WriteString("\n")
		b.WriteString(Marker(name))
		b.WriteString(" ")
		b.WriteString(tgui.Esc(name).String())
	}
	if rest := len(list) - len(visible); rest > 0 {
		b.WriteString("\n… и ещё ")
		b.WriteString(strconv.Itoa(rest))
	}
	if r.Error != "" {
		b.WriteString("\n\n")
		b.WriteString(annotation(r.Error))
	}
	return b.String()
}

func annotation(text string) string {
	return tgui.Esc(tgui.TruncRunes(text, maxAnnotationRunes)).String()
}

// FormatSingleHoliday headlines one holiday: "<marker> Сегодня, DD.MM.YYYY, <name>".
func FormatSingleHoliday(name string, date time.Time) string {
	return Marker(name) + " Сегодня, " + date.Format("02.01.2006") + ", " + tgui.Esc(name).String()
}
