package llm

import "strings"

// ClassificationGrammar constrains local generation to the classification
// object shape.
const ClassificationGrammar = `root   ::= "{" ws "\"category\"" ws ":" ws string "," ws "\"tags\"" ws ":" ws tags "," ws "\"confidence\"" ws ":" ws number ws "}"
tags   ::= "[" ws ( string ( ws "," ws string )* )? ws "]"
string ::= "\"" ( [^"\\] | "\\" ["\\/bfnrt] )* "\""
number ::= "0" ( "." [0-9]+ )? | "1" ( ".0" )?
ws     ::= [ \t\n]*
`

const classificationPrompt = `You are a classifier for short notes and ideas.
Read the text below and answer with a single JSON object of the form
{"category": "<one or two words>", "tags": ["<tag>", ...], "confidence": <0..1>}.
Use at most five lowercase tags. Do not add any commentary.

Text:
"""
{{TEXT}}
"""

JSON:`

// ClassificationPrompt renders the fixed classification prompt for text.
func ClassificationPrompt(text string) string {
	return strings.Replace(classificationPrompt, "{{TEXT}}", strings.TrimSpace(text), 1)
}

// ClassificationOptions are the generation parameters used for Classify.
func ClassificationOptions(withGrammar bool) CompletionOptions {
	opts := CompletionOptions{
		Temperature: 0.1,
		MaxTokens:   256,
		Stop:        []string{"\n\n\n"},
	}
	if withGrammar {
		opts.Grammar = ClassificationGrammar
	}
	return opts
}
