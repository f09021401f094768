package http

import (
	"net/http"
	"sort"
	"strings"

	"github.com/golang/gddo/httputil/header"
)

// match is an offered content type that an Accept header entry
// admits.
type match struct {
	offer       string
	q           float64
	specificity int // 2 for type/subtype, 1 for type/*, 0 for */*
	rank        int // position in the offers
}

func specificity(accepted, offer string) (int, bool) {
	switch {
	case accepted == offer:
		return 2, true
	case accepted == "*/*":
		return 0, true
	case strings.HasSuffix(accepted, "/*"):
		return 1, strings.HasPrefix(offer, strings.TrimSuffix(accepted, "*"))
	}
	return 0, false
}

// negotiateContentType picks one of offers for the request's Accept
// header. Higher quality wins; at equal quality an exact type beats a
// wildcard, and otherwise the earlier offer wins. It returns the
// first offer if there's no Accept header, and "" if nothing offered
// is acceptable.
func negotiateContentType(r *http.Request, offers ...string) string {
	accepts := header.ParseAccept(r.Header, "Accept")
	if len(accepts) == 0 {
		return offers[0]
	}

	// q=0 on a type by name refuses it, whatever the wildcards say.
	refused := map[string]bool{}
	for _, a := range accepts {
		if a.Q <= 0 {
			refused[a.Value] = true
		}
	}

	var matches []match
	for _, a := range accepts {
		if a.Q <= 0 {
			continue
		}
		for i, offer := range offers {
			if refused[offer] {
				continue
			}
			if s, ok := specificity(a.Value, offer); ok {
				matches = append(matches, match{offer: offer, q: a.Q, specificity: s, rank: i})
			}
		}
	}
	if len(matches) == 0 {
		return ""
	}
	sort.SliceStable(matches, func(i, j int) bool {
		mi, mj := matches[i], matches[j]
		if mi.q != mj.q {
			return mi.q > mj.q
		}
		if mi.specificity != mj.specificity {
			return mi.specificity > mj.specificity
		}
		return mi.rank < mj.rank
	})
	return matches[0].offer
}
