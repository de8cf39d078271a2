package holidays

import (
	"strings"
	"time"

	"golang.org/x/net/html"
)

const holidayHrefMarker = "/holidays/0/0/"

// ParseHolidays extracts holiday names for date from a calend.ru day page.
//
// Only links inside the div with id "div_YYYY-MM-DD" whose href contains
// /holidays/0/0/ are collected, in document order. Div depth is tracked so
// nested divs do not end the section early. A missing section yields an empty
// list; broken markup is read best-effort.
func ParseHolidays(markup string, date time.Time) []string {
	target := "div_" + DateKey(date)
	z := html.NewTokenizer(strings.NewReader(markup))

	var (
		out     = []string{}
		inside  bool
		depth   int
		capture bool
		buf     strings.Builder
	)

	start := func(tag string, attrs map[string]string) {
		switch {
		case tag == "div":
			if inside {
				depth++
			} else if attrs["id"] == target {
				inside, depth = true, 1
			}
		case tag == "a" && inside:
			if strings.Contains(attrs["href"], holidayHrefMarker) {
				capture = true
				buf.Reset()
			}
		}
	}
	end := func(tag string) {
		switch {
		case inside && tag == "div":
			depth--
			if depth <= 0 {
				inside, depth = false, 0
			}
		case tag == "a" && capture:
			if text := strings.TrimSpace(buf.String()); text != "" {
				out = append(out, text)
			}
			capture = false
			buf.Reset()
		}
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return out
		case html.TextToken:
			if capture {
				buf.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			if tag != "div" && tag != "a" {
				continue
			}
			attrs := map[string]string{}
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				attrs[string(k)] = string(v)
			}
			start(tag, attrs)
			if tt == html.SelfClosingTagToken {
				end(tag)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			end(string(name))
		}
	}
}
