package router

import (
	"fmt"
	"regexp"
	"strings"
)

// pattern is a compiled URL pattern. Supported syntax:
//
//	*/v4/linode/instances      leading * matches any host or base prefix
//	/v4/volumes/:id            :name captures one path segment
//	*/v4*/networking/vpcs      * inside a segment matches within that segment
//	/__static/*                trailing /* matches the remaining path
type pattern struct {
	raw    string
	re     *regexp.Regexp
	params []string
}

var paramName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func compilePattern(raw string) (pattern, error) {
	if raw == "" {
		return pattern{}, fmt.Errorf("empty pattern")
	}
	var b strings.Builder
	b.WriteString("^")
	rest := raw
	if strings.HasPrefix(rest, "*") {
		b.WriteString(".*?")
		rest = rest[1:]
	}
	if rest != "" && !strings.HasPrefix(rest, "/") {
		return pattern{}, fmt.Errorf("pattern %q: path must start with /", raw)
	}
	var params []string
	segments := strings.Split(strings.TrimPrefix(rest, "/"), "/")
	for i, seg := range segments {
		if rest == "" {
			break
		}
		b.WriteString("/")
		last := i == len(segments)-1
		switch {
		case seg == "*" && last:
			b.WriteString(".*")
		case strings.HasPrefix(seg, ":"):
			name := seg[1:]
			if !paramName.MatchString(name) {
				return pattern{}, fmt.Errorf("pattern %q: invalid parameter %q", raw, seg)
			}
			for _, p := range params {
				if p == name {
					return pattern{}, fmt.Errorf("pattern %q: duplicate parameter %q", raw, name)
				}
			}
			params = append(params, name)
			b.WriteString("(?P<" + name + ">[^/]+)")
		default:
			parts := strings.Split(seg, "*")
			for j, part := range parts {
				if j > 0 {
					b.WriteString("[^/]*")
				}
				b.WriteString(regexp.QuoteMeta(part))
			}
		}
	}
	b.WriteString("/?$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return pattern{}, fmt.Errorf("pattern %q: %w", raw, err)
	}
	return pattern{raw: raw, re: re, params: params}, nil
}

// match returns the captured parameters when path satisfies the pattern.
func (p pattern) match(path string) (Params, bool) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	params := make(Params, len(p.params))
	for i, name := range p.re.SubexpNames() {
		if name != "" {
			params[name] = m[i]
		}
	}
	return params, true
}
