package geo

import "strings"

// KingstonCenter is the island-wide fallback used when no better location is
// available.
var KingstonCenter = Coordinate{Lat: 17.9970, Lng: -76.7936}

// Parish centre points used when geocoding a location fails outright.
var parishDefaults = map[string]Coordinate{
	"Kingston":      {Lat: 17.9970, Lng: -76.7936},
	"St Andrew":     {Lat: 18.0391, Lng: -76.7567},
	"St Catherine":  {Lat: 17.9919, Lng: -77.0011},
	"Clarendon":     {Lat: 17.9611, Lng: -77.2500},
	"Manchester":    {Lat: 18.0500, Lng: -77.5000},
	"St Elizabeth":  {Lat: 18.0667, Lng: -77.7500},
	"Westmoreland":  {Lat: 18.3167, Lng: -78.1333},
	"Hanover":       {Lat: 18.4167, Lng: -78.1333},
	"St James":      {Lat: 18.4833, Lng: -77.9167},
	"Trelawny":      {Lat: 18.3667, Lng: -77.6500},
	"St Ann":        {Lat: 18.4333, Lng: -77.2000},
	"St Mary":       {Lat: 18.3500, Lng: -76.9000},
	"Portland":      {Lat: 18.2000, Lng: -76.4500},
	"St Thomas":     {Lat: 17.9000, Lng: -76.3500},
}

// KnownParish reports whether the parish name matches one of the fourteen
// parishes, ignoring case.
func KnownParish(parish string) bool {
	clean := strings.ToLower(strings.TrimSpace(parish))
	for name := range parishDefaults {
		if strings.ToLower(name) == clean {
			return true
		}
	}
	return false
}

// ParishCenter returns the default centre for a parish, falling back to
// St Andrew when the name cannot be matched.
func ParishCenter(parish string) Coordinate {
	clean := strings.ToLower(strings.TrimSpace(parish))
	if clean == "" {
		return parishDefaults["St Andrew"]
	}
	for name, c := range parishDefaults {
		if strings.ToLower(name) == clean {
			return c
		}
	}
	for name, c := range parishDefaults {
		lower := strings.ToLower(name)
		if strings.Contains(clean, lower) || strings.Contains(lower, clean) {
			return c
		}
	}
	return parishDefaults["St Andrew"]
}
