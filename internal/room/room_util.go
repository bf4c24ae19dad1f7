package room

import "slices"

func NewEmptyState() State {
	return State{Participants: []string{}, Waitlist: []string{}}
}

// FromSnapshot builds a State that holds the invariants even if the server
// sent duplicates: repeated ids are dropped and an id listed twice is kept
// as a participant only.
func FromSnapshot(snap Snapshot) State {
	s := NewEmptyState()
	seen := make(map[string]bool, len(snap.Participants)+len(snap.Waitlist))
	for _, u := range snap.Participants {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		s.Participants = append(s.Participants, u)
	}
	for _, u := range snap.Waitlist {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		s.Waitlist = append(s.Waitlist, u)
	}
	return s
}

func has(s State, u string) bool {
	return slices.Contains(s.Participants, u) || slices.Contains(s.Waitlist, u)
}

// appendCopy never writes into the backing array of in.
func appendCopy(in []string, u string) []string {
	out := make([]string, len(in), len(in)+1)
	copy(out, in)
	return append(out, u)
}

func without(in []string, u string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v != u {
			out = append(out, v)
		}
	}
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
