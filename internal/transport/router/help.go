package router

import (
	"html"
	"strings"
)

// helpText renders the command list for ParseMode=HTML.
func (r *Router) helpText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	header := r.opts.HelpHeader
	if header == "" {
		header = "📚 <b>Команды</b>"
	}
	lines := []string{header, ""}
	for _, name := range r.order {
		c := r.cmds[name]
		line := "/" + html.EscapeString(name)
		if c.Usage != "" {
			line = "<code>" + html.EscapeString(c.Usage) + "</code>"
		}
		if c.Description != "" {
			line += ": " + html.EscapeString(c.Description)
		}
		if c.Access == AccessAdmin {
			line += " 🔒"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
