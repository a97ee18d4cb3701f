package instructions

import (
	"fmt"
	"strings"
	"text/template"
)

var funcMap = template.FuncMap{
	"need":     need,
	"items":    items,
	"join":     join,
	"upper":    strings.ToUpper,
	"titleize": titleize,
	"present":  present,
	"inc":      func(i int) int { return i + 1 },
}

// need renders v, or a placeholder directive naming what is missing.
func need(v any, what string) string {
	if s := text(v); s != "" {
		return s
	}
	return fmt.Sprintf("<add your %s>", what)
}

func present(v any) bool {
	return text(v) != ""
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprint(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// items normalizes a JSON array or a newline separated string into a
// list of non-empty strings.
func items(v any) []string {
	var raw []string
	switch t := v.(type) {
	case []string:
		raw = t
	case []any:
		for _, item := range t {
			raw = append(raw, text(item))
		}
	case string:
		raw = strings.Split(t, "\n")
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func join(v any, sep string) string {
	return strings.Join(items(v), sep)
}

// titleize turns "software_development" into "Software Development".
func titleize(v any) string {
	words := strings.Fields(strings.ReplaceAll(text(v), "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
