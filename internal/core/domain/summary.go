package domain

import "strings"

type SpanKind string

const (
	SpanPlain   SpanKind = "plain"
	SpanStole   SpanKind = "stole"
	SpanWon     SpanKind = "won"
	SpanMention SpanKind = "mention"
	SpanAmount  SpanKind = "amount"
)

// SummarySpan est un mot de la description avec sa mise en forme
type SummarySpan struct {
	Text string   `json:"text"`
	Kind SpanKind `json:"kind"`
}

// Summarize découpe la description par espaces et classe chaque mot,
// pour que le client puisse colorer vols, victoires, mentions et montants.
func Summarize(description string) []SummarySpan {
	words := strings.Split(description, " ")
	spans := make([]SummarySpan, 0, len(words))
	for _, w := range words {
		spans = append(spans, SummarySpan{Text: w, Kind: classify(w)})
	}
	return spans
}

func classify(word string) SpanKind {
	switch {
	case word == "stole":
		return SpanStole
	case word == "won":
		return SpanWon
	case strings.HasPrefix(word, "@"):
		return SpanMention
	case strings.Contains(word, "token") || strings.ContainsFunc(word, isASCIIDigit):
		return SpanAmount
	default:
		return SpanPlain
	}
}

func isASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
