package router

import (
	"regexp"
	"strings"
)

// Heading is one markdown section header.
type Heading struct {
	Level int    `json:"level"`
	Title string `json:"title"`
}

// SectionDiff compares the headings of two documents by title.
type SectionDiff struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Reordered []string `json:"reordered"`
}

var (
	atxHeading  = regexp.MustCompile(`^ {0,3}(#{1,6})[ \t]+(.+?)(?:[ \t]+#+)?[ \t]*$`)
	setextH1    = regexp.MustCompile(`^ {0,3}=+[ \t]*$`)
	setextH2    = regexp.MustCompile(`^ {0,3}-+[ \t]*$`)
	codeFence   = regexp.MustCompile("^ {0,3}(```|~~~)")
	listOrQuote = regexp.MustCompile(`^ {0,3}([-*+>]|\d+[.)])[ \t]`)
)

// ExtractHeadings returns ATX and setext headings outside fenced code.
func ExtractHeadings(doc string) []Heading {
	var out []Heading
	lines := strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n")
	inFence := false
	prev := "" // previous paragraph line that could carry a setext underline
	for _, line := range lines {
		if codeFence.MatchString(line) {
			inFence = !inFence
			prev = ""
			continue
		}
		if inFence {
			continue
		}
		if m := atxHeading.FindStringSubmatch(line); m != nil {
			out = append(out, Heading{Level: len(m[1]), Title: strings.TrimSpace(m[2])})
			prev = ""
			continue
		}
		if prev != "" {
			switch {
			case setextH1.MatchString(line):
				out = append(out, Heading{Level: 1, Title: prev})
				prev = ""
				continue
			case setextH2.MatchString(line):
				out = append(out, Heading{Level: 2, Title: prev})
				prev = ""
				continue
			}
		}
		t := strings.TrimSpace(line)
		if t == "" || listOrQuote.MatchString(line) || strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t") {
			prev = ""
			continue
		}
		prev = t
	}
	return out
}

// Summarize renders headings as an indented outline.
func Summarize(hs []Heading) string {
	if len(hs) == 0 {
		return ""
	}
	min := hs[0].Level
	for _, h := range hs {
		if h.Level < min {
			min = h.Level
		}
	}
	var b strings.Builder
	for _, h := range hs {
		b.WriteString(strings.Repeat("  ", h.Level-min))
		b.WriteString("- ")
		b.WriteString(h.Title)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func normTitle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// titles returns unique titles in document order, keyed by normalized form.
func titles(hs []Heading) (keys []string, display map[string]string) {
	display = make(map[string]string, len(hs))
	for _, h := range hs {
		k := normTitle(h.Title)
		if k == "" {
			continue
		}
		if _, dup := display[k]; dup {
			continue
		}
		display[k] = h.Title
		keys = append(keys, k)
	}
	return keys, display
}

// DiffSections reports headings added, removed and moved between before and
// after. Moved headings are the common ones outside the longest common
// subsequence.
func DiffSections(before, after []Heading) SectionDiff {
	bk, bd := titles(before)
	ak, ad := titles(after)
	d := SectionDiff{Added: []string{}, Removed: []string{}, Reordered: []string{}}

	var bc, ac []string
	for _, k := range bk {
		if _, ok := ad[k]; ok {
			bc = append(bc, k)
		} else {
			d.Removed = append(d.Removed, bd[k])
		}
	}
	for _, k := range ak {
		if _, ok := bd[k]; ok {
			ac = append(ac, k)
		} else {
			d.Added = append(d.Added, ad[k])
		}
	}

	stable := lcs(bc, ac)
	for _, k := range ac {
		if !stable[k] {
			d.Reordered = append(d.Reordered, ad[k])
		}
	}
	return d
}

func lcs(a, b []string) map[string]bool {
	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}
	keep := make(map[string]bool)
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] == b[j]:
			keep[a[i]] = true
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return keep
}
