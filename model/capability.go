package model

import (
	"slices"
	"strings"
)

// Capabilities checked by the HTTP layer. Each is a colon-separated path;
// policies may grant a whole subtree with a trailing "*" segment.
const (
	CapSyllabusUpload    = "syllabus:upload"
	CapSyllabusReview    = "syllabus:review"
	CapSyllabusRead      = "syllabus:read"
	CapSyllabusReadAll   = "syllabus:read:all"
	CapUsersManage       = "users:manage"
	CapNotificationsRead = "notifications:read"
)

// CapabilitySet holds granted capabilities and wildcard grants.
type CapabilitySet map[string]bool

// NewCapabilitySet grants each of caps.
func NewCapabilitySet(caps ...string) CapabilitySet {
	cs := make(CapabilitySet, len(caps))
	for _, c := range caps {
		cs[c] = true
	}
	return cs
}

// Has reports whether cap is granted directly or through a wildcard.
//
//	"*"              grants everything
//	"syllabus:*"     grants "syllabus:read" and "syllabus:read:all"
//	"syllabus"       grants only "syllabus"
func (cs CapabilitySet) Has(cap string) bool {
	if cs[cap] || cs["*"] {
		return true
	}
	for i := strings.LastIndexByte(cap, ':'); i > 0; i = strings.LastIndexByte(cap[:i], ':') {
		if cs[cap[:i]+":*"] {
			return true
		}
	}
	return false
}

// HasAny reports whether at least one of caps is granted.
func (cs CapabilitySet) HasAny(caps ...string) bool {
	return slices.ContainsFunc(caps, cs.Has)
}

// List returns the granted entries in sorted order.
func (cs CapabilitySet) List() []string {
	out := make([]string, 0, len(cs))
	for c, granted := range cs {
		if granted {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return out
}

// CapabilityResolver returns the capabilities of the caller, typically
// through a cache in front of a PolicyEvaluator.
type CapabilityResolver interface {
	Resolve(rctx *RequestContext) (CapabilitySet, error)
	// Invalidate drops cached entries for a user whose role changed.
	Invalidate(subjectID string)
}

// PolicyEvaluator is the source of truth mapping roles to capabilities.
type PolicyEvaluator interface {
	ResolveCapabilities(rctx *RequestContext) (CapabilitySet, error)
	// Sync reloads the policy.
	Sync() error
}
