package measure

import (
	"strconv"
	"strings"
)

// NoThreshold marks a metric requested without a usable threshold.
const NoThreshold = -1.0

// Request is the list of metric tokens asked for by the caller, such as
// "acc", "acc-5", "f1", "kl-0.1" or "eucll".
type Request struct {
	tokens []string
}

// ParseRequest builds a Request from raw tokens.
func ParseRequest(tokens []string) Request {
	return Request{tokens: append([]string(nil), tokens...)}
}

// ParseRequestString splits a comma separated token list.
func ParseRequestString(s string) Request {
	var tokens []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return Request{tokens: tokens}
}

// Tokens returns the request tokens.
func (r Request) Tokens() []string {
	return r.tokens
}

// Empty reports whether no metric was requested.
func (r Request) Empty() bool {
	return len(r.tokens) == 0
}

// Has reports whether name was requested verbatim.
func (r Request) Has(name string) bool {
	for _, t := range r.tokens {
		if t == name {
			return true
		}
	}
	return false
}

// Contains reports whether any token contains sub.
func (r Request) Contains(sub string) bool {
	for _, t := range r.tokens {
		if strings.Contains(t, sub) {
			return true
		}
	}
	return false
}

// PresenceAndThreshold looks for tokens containing name. A token of the form
// "<x>-<thr>" sets the threshold to thr, any other matching token sets it to
// zero; the last matching token wins. When nothing matches the metric is
// disabled and the threshold is NoThreshold.
func (r Request) PresenceAndThreshold(name string) (bool, float64) {
	found := false
	thres := NoThreshold
	for _, t := range r.tokens {
		if !strings.Contains(t, name) {
			continue
		}
		found = true
		thres = 0
		if parts := strings.Split(t, "-"); len(parts) == 2 {
			thres = atof(parts[1])
		}
	}
	return found, thres
}

// AccuracyKs returns the k of every accuracy token, in request order.
// "acc" means k = 1 and "acc-5" means k = 5.
func (r Request) AccuracyKs() []int {
	var ks []int
	for _, t := range r.tokens {
		if !strings.Contains(t, "acc") {
			continue
		}
		k := 1
		if parts := strings.Split(t, "-"); len(parts) == 2 {
			k = atoi(parts[1])
		}
		ks = append(ks, k)
	}
	return ks
}

// atof parses the leading number of s and yields 0 when there is none.
func atof(s string) float64 {
	s = strings.TrimSpace(s)
	for end := len(s); end > 0; end-- {
		if v, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return v
		}
	}
	return 0
}

func atoi(s string) int {
	return int(atof(s))
}
