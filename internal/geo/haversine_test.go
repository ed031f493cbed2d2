package geo

import "testing"

func TestHaversineKMClosestRelaySelection(t *testing.T) {
	// Scenario 7 from spec.md §8: gateway near Houston, relays in Kansas,
	// Mexico City, and Sydney. Kansas and Mexico must be closer than Sydney.
	houston := LatLon{Lat: 29.69, Lon: -95.90}
	kansas := LatLon{Lat: 38, Lon: -97}
	mexico := LatLon{Lat: 20.59, Lon: -100.39}
	sydney := LatLon{Lat: -33.87, Lon: 151.21}

	dKansas := HaversineKM(houston, kansas)
	dMexico := HaversineKM(houston, mexico)
	dSydney := HaversineKM(houston, sydney)

	if dKansas >= dSydney || dMexico >= dSydney {
		t.Fatalf("expected Kansas (%.0fkm) and Mexico (%.0fkm) closer than Sydney (%.0fkm)", dKansas, dMexico, dSydney)
	}
}

func TestHaversineKMZeroForSamePoint(t *testing.T) {
	p := LatLon{Lat: 10, Lon: 20}
	if d := HaversineKM(p, p); d > 1e-9 {
		t.Fatalf("expected ~0 distance for identical points, got %f", d)
	}
}
