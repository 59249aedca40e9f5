// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"sort"
)

// IOType is a capability tag. Membership in the envelope's capability set
// asserts that the envelope currently carries usable data of the named kind,
// not that a value has a particular concrete type.
type IOType string

const (
	IOVideo                IOType = "video"
	IOImages               IOType = "images"
	IOFrames               IOType = "frames"
	IOFrameScores          IOType = "frames.scores"
	IOFrameClassifications IOType = "frames.classifications"
	IOFrameProduct         IOType = "frames.product"
	IOCommercialImages     IOType = "images.commercial"
	IOText                 IOType = "text"
)

// KnownIOTypes lists all members of the closed tag set in canonical order.
var KnownIOTypes = []IOType{
	IOVideo,
	IOImages,
	IOFrames,
	IOFrameScores,
	IOFrameClassifications,
	IOFrameProduct,
	IOCommercialImages,
	IOText,
}

// ParseIOType converts a string into a known IO tag.
func ParseIOType(s string) (IOType, error) {
	for _, t := range KnownIOTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown io type %q", s)
}

// IODeclaration describes the IO contract of a processor.
type IODeclaration struct {
	Requires []IOType `json:"requires"`
	Produces []IOType `json:"produces"`
}

// Equal reports whether two declarations are equal as multisets.
func (d IODeclaration) Equal(other IODeclaration) bool {
	return equalMultiset(d.Requires, other.Requires) && equalMultiset(d.Produces, other.Produces)
}

func equalMultiset(a, b []IOType) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]IOType{}, a...)
	bs := append([]IOType{}, b...)
	sort.Slice(as, func(i, j int) bool { return as[i] < as[j] })
	sort.Slice(bs, func(i, j int) bool { return bs[i] < bs[j] })
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// IOSet is a capability set of IO tags.
type IOSet map[IOType]struct{}

// NewIOSet creates a set from the given tags.
func NewIOSet(tags ...IOType) IOSet {
	s := IOSet{}
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

// Has reports whether the tag is a member of the set.
func (s IOSet) Has(tag IOType) bool {
	_, ok := s[tag]
	return ok
}

// Add adds the given tags to the set.
func (s IOSet) Add(tags ...IOType) {
	for _, t := range tags {
		s[t] = struct{}{}
	}
}

// Clone returns a copy of the set.
func (s IOSet) Clone() IOSet {
	c := make(IOSet, len(s))
	for t := range s {
		c[t] = struct{}{}
	}
	return c
}

// ContainsAll reports whether every tag of other is a member of s.
func (s IOSet) ContainsAll(other IOSet) bool {
	for t := range other {
		if !s.Has(t) {
			return false
		}
	}
	return true
}

// List returns the members in canonical order.
func (s IOSet) List() []IOType {
	out := []IOType{}
	for _, t := range KnownIOTypes {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}
