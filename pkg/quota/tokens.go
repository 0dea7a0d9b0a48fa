package quota

import "strings"

// charsPerToken is the rough character-to-token ratio used when a caller
// has no exact cost signal at reserve time.
const charsPerToken = 4

// EstimateTokens returns an advisory token estimate for a piece of text:
// zero for blank input, otherwise length divided by four with a minimum of
// one. It is a cheap length heuristic; actual usage is booked at reconcile
// time, so the ledger never depends on its accuracy.
func EstimateTokens(text string) int64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	estimate := int64(len(text) / charsPerToken)
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}
