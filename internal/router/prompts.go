package router

import (
	"strings"
	"text/template"
)

var mutationsTmpl = template.Must(template.New("mutations").Parse(`You generate variations of an idea.
Produce {{.Count}} distinct mutations of the idea below.{{if .Focus}} Focus on: {{.Focus}}.{{end}}
Answer with a JSON array only. Each element has the form
{"title": "<short title>", "description": "<two or three sentences>", "differences": ["<how it differs>", ...]}

Idea:
"""
{{.Idea}}
"""

JSON:`))

var expandTmpl = template.Must(template.New("expand").Parse(`Expand the idea below into a structured markdown document.
Keep the existing sections, deepen them, and add sections for anything important that is missing.
Use markdown headings (#, ##, ###) for every section.{{if .Instructions}}
Additional instructions: {{.Instructions}}{{end}}

Idea:
"""
{{.Idea}}
"""
`))

var reorganizeTmpl = template.Must(template.New("reorganize").Parse(`Reorganize the document below into a clearer structure.
Group related points, order sections logically and merge duplicates. Do not invent new content.
Use markdown headings (#, ##, ###) for every section.{{if .Instructions}}
Additional instructions: {{.Instructions}}{{end}}

Document:
"""
{{.Idea}}
"""
`))

type promptData struct {
	Idea         string
	Count        int
	Focus        string
	Instructions string
}

func render(t *template.Template, d promptData) (string, error) {
	d.Idea = strings.TrimSpace(d.Idea)
	var b strings.Builder
	if err := t.Execute(&b, d); err != nil {
		return "", err
	}
	return b.String(), nil
}
