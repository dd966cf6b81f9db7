package providers

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	mathFencePattern = regexp.MustCompile("(?s)```math\\s*\\n?(.*?)\\s*```")
	codeFencePattern = regexp.MustCompile("(?s)```.*?```")

	latexRules = []struct {
		pattern     *regexp.Regexp
		replacement string
	}{
		{regexp.MustCompile(`Σ[ᵢi]₌₁([³⁵⁴ⁿ\d])\s*([^=\n]+)`), `$$$$\sum_{i=1}^{${1}} ${2}$$$$`},
		{regexp.MustCompile(`Σ\s*\(\s*i\s*=\s*1\s*to\s*([^)]+)\)\s*([^=\n]+)`), `$$$$\sum_{i=1}^{${1}} ${2}$$$$`},
		{regexp.MustCompile(`∫\s*([^\n]+?)\s*d([a-z])\b`), `$$$$\int ${1} \, d${2}$$$$`},
	}
)

// FormatLaTeX normalises math notation to $$-delimited LaTeX. Fenced code
// blocks are left untouched.
func FormatLaTeX(content string) string {
	if content == "" {
		return content
	}

	content = mathFencePattern.ReplaceAllString(content, "$$$$${1}$$$$")

	var blocks []string
	content = codeFencePattern.ReplaceAllStringFunc(content, func(block string) string {
		blocks = append(blocks, block)
		return codeBlockPlaceholder(len(blocks) - 1)
	})

	for _, rule := range latexRules {
		content = rule.pattern.ReplaceAllString(content, rule.replacement)
	}
	content = promoteInlineMath(content)

	for i, block := range blocks {
		content = strings.Replace(content, codeBlockPlaceholder(i), block, 1)
	}
	return content
}

func codeBlockPlaceholder(i int) string {
	return fmt.Sprintf("\x00CODE_BLOCK_%d\x00", i)
}

// promoteInlineMath rewrites $x$ as $$x$$. An opening $ must be followed by a
// non-space and the closing $ preceded by one, so prices like "$5 and $10" stay.
func promoteInlineMath(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], "$$") {
			end := strings.Index(s[i+2:], "$$")
			if end < 0 {
				b.WriteString(s[i:])
				break
			}
			b.WriteString(s[i : i+end+4])
			i += end + 4
			continue
		}
		if s[i] == '$' {
			end := strings.IndexAny(s[i+1:], "$\n")
			if end > 0 && s[i+1+end] == '$' {
				inner := s[i+1 : i+1+end]
				if inner == strings.TrimSpace(inner) {
					b.WriteString("$$")
					b.WriteString(inner)
					b.WriteString("$$")
					i += end + 2
					continue
				}
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}
