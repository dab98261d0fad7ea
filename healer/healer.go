// Package healer implements self-healing: copying chunk bytes between files
// that happen to share the same chunk identity, so that one downloaded copy
// of a chunk can fill every other file missing it.
package healer

import (
	"sort"

	"github.com/chunkernet/chunker/chunkfile"
)

// SelfHeal matches known chunks against missing chunks by identity and
// copies bytes from the former to the latter via Chunk.SaveData. It returns
// the total number of bytes healed, or -1 if either list is empty (nothing
// to do).
//
// Both lists are sorted by identity and walked in linear time rather than
// compared pairwise.
func SelfHeal(known, missing []*chunkfile.Chunk) int64 {
	if len(known) == 0 || len(missing) == 0 {
		return -1
	}

	sortedKnown := make([]*chunkfile.Chunk, len(known))
	copy(sortedKnown, known)
	sort.Slice(sortedKnown, func(i, j int) bool {
		return sortedKnown[i].Identity() < sortedKnown[j].Identity()
	})

	sortedMissing := make([]*chunkfile.Chunk, len(missing))
	copy(sortedMissing, missing)
	sort.Slice(sortedMissing, func(i, j int) bool {
		return sortedMissing[i].Identity() < sortedMissing[j].Identity()
	})

	var healed int64
	i, j := 0, 0
	for i < len(sortedKnown) && j < len(sortedMissing) {
		k, m := sortedKnown[i], sortedMissing[j]
		switch {
		case k.Identity() < m.Identity():
			i++
		case k.Identity() > m.Identity():
			j++
		default:
			data := k.GetData(nil)
			if err := m.SaveData(data, 0, false); err == nil {
				healed += int64(len(data))
			}
			j++
		}
	}
	return healed
}
