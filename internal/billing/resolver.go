package billing

import "sort"

// Prioritize orders active instruments for an attempt sequence: default
// instrument first, then ascending priority. A preferred instrument id, if
// present and active in the set, is promoted to the front regardless of its
// stored priority. The input slice is not mutated.
func Prioritize(instruments []*PaymentInstrument, preferredID string) []*PaymentInstrument {
	ordered := make([]*PaymentInstrument, 0, len(instruments))
	for _, ins := range instruments {
		if ins.Active() {
			ordered = append(ordered, ins)
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].IsDefault != ordered[j].IsDefault {
			return ordered[i].IsDefault
		}
		return ordered[i].Priority < ordered[j].Priority
	})

	if preferredID == "" {
		return ordered
	}
	for idx, ins := range ordered {
		if ins.ID == preferredID {
			promoted := ordered[idx]
			copy(ordered[1:idx+1], ordered[:idx])
			ordered[0] = promoted
			break
		}
	}
	return ordered
}
