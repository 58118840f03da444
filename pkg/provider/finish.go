package provider

import "github.com/rhuss/byok/pkg/api"

// FinishReasonTable maps one vendor's stop vocabulary onto the canonical
// finish reasons.
type FinishReasonTable map[string]api.FinishReason

// Map returns the canonical reason for term. Unrecognized terms,
// including the empty string, map to unknown.
func (t FinishReasonTable) Map(term string) api.FinishReason {
	if r, ok := t[term]; ok {
		return r
	}
	return api.FinishReasonUnknown
}
