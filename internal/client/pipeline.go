package client

import (
	"sort"

	"github.com/neighbourhood/atmfinder/internal/domain"
	"github.com/neighbourhood/atmfinder/internal/geo"
)

// Filter selects the active reduction applied to the fetched list. Exactly
// one filter is active at a time; a concrete bank code is also a valid value.
type Filter string

const (
	FilterAll              Filter = "ALL"
	FilterUserPreferences  Filter = "USER_PREFERENCES"
	FilterLowestFees       Filter = "LOWEST_FEES"
	FilterShortestDistance Filter = "SHORTEST_DISTANCE"
	FilterABMOnly          Filter = "ABM_ONLY"
	FilterUSDOnly          Filter = "USD_ONLY"
)

// filterResultLimit caps the LOWEST_FEES and SHORTEST_DISTANCE result sets.
const filterResultLimit = 10

// ValidFilter reports whether v names a known filter or bank code.
func ValidFilter(v Filter) bool {
	switch v {
	case FilterAll, FilterUserPreferences, FilterLowestFees, FilterShortestDistance, FilterABMOnly, FilterUSDOnly:
		return true
	}
	return domain.IsBankCode(string(v))
}

// ApplyFilter is the pure distance/filter pipeline: drop records without
// usable coordinates, annotate the rest with haversine distance from userLoc,
// then apply the active filter. When no location is available yet, the list
// passes through untouched so the screen is never blanked waiting for a fix.
func ApplyFilter(atms []ATM, userLoc *geo.Coordinate, active Filter) []ATM {
	if userLoc == nil {
		out := make([]ATM, len(atms))
		copy(out, atms)
		return out
	}

	annotated := make([]ATM, 0, len(atms))
	for _, atm := range atms {
		coord, ok := atm.Coordinates()
		if !ok {
			continue
		}
		d := geo.Distance(*userLoc, coord)
		atm.DistanceKM = &d
		annotated = append(annotated, atm)
	}

	switch active {
	case FilterAll, FilterUserPreferences:
		return annotated

	case FilterLowestFees:
		sort.SliceStable(annotated, func(i, j int) bool {
			return annotated[i].WithdrawalFee < annotated[j].WithdrawalFee
		})
		return truncate(annotated, filterResultLimit)

	case FilterShortestDistance:
		sort.SliceStable(annotated, func(i, j int) bool {
			return *annotated[i].DistanceKM < *annotated[j].DistanceKM
		})
		return truncate(annotated, filterResultLimit)

	case FilterABMOnly:
		return keep(annotated, func(a ATM) bool { return a.Type == "ABM" })

	case FilterUSDOnly:
		return keep(annotated, func(a ATM) bool { return a.SupportsCurrency == domain.CurrencyUSD })

	default:
		if domain.IsBankCode(string(active)) {
			code := string(active)
			return keep(annotated, func(a ATM) bool { return a.Bank == code })
		}
		return annotated
	}
}

func keep(atms []ATM, pred func(ATM) bool) []ATM {
	out := atms[:0:0]
	for _, atm := range atms {
		if pred(atm) {
			out = append(out, atm)
		}
	}
	return out
}

func truncate(atms []ATM, limit int) []ATM {
	if len(atms) > limit {
		return atms[:limit]
	}
	return atms
}
