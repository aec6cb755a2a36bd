package model

import (
	"regexp"
	"strings"
)

var tokenRe = regexp.MustCompile(`\{ *(\w+) *\}`)

// Template is a parsed tile url like "https://{s}.tile.example.org/{z}/{x}/{y}{r}.png".
type Template struct {
	raw   string
	parts []part
}

type part struct {
	text  string
	token bool
}

func ParseTemplate(s string) (*Template, error) {
	t := &Template{raw: s}

	last := 0
	for _, m := range tokenRe.FindAllStringSubmatchIndex(s, -1) {
		if m[0] > last {
			t.parts = append(t.parts, part{text: s[last:m[0]]})
		}

		t.parts = append(t.parts, part{text: s[m[2]:m[3]], token: true})
		last = m[1]
	}

	if last < len(s) {
		t.parts = append(t.parts, part{text: s[last:]})
	}

	for _, p := range t.parts {
		if !p.token && strings.ContainsAny(p.text, "{}") {
			return nil, configErr("url", "malformed placeholder in %q", s)
		}
	}

	return t, nil
}

func (t *Template) String() string {
	return t.raw
}

// Keys returns token names in order of appearance, duplicates included.
func (t *Template) Keys() []string {
	var res []string

	for _, p := range t.parts {
		if p.token {
			res = append(res, p.text)
		}
	}

	return res
}

func (t *Template) Execute(values map[string]string) (string, error) {
	var sb strings.Builder

	for _, p := range t.parts {
		if !p.token {
			sb.WriteString(p.text)
			continue
		}

		v, ok := values[p.text]
		if !ok {
			return "", configErr("url", "no value provided for variable {%s}", p.text)
		}

		sb.WriteString(v)
	}

	return sb.String(), nil
}
