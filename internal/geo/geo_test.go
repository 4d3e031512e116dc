package geo_test

import (
	"math"
	"testing"

	"github.com/citysignal/citysignal/internal/geo"
)

func TestHaversineMeters(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		wantMeters             float64
		tolerance              float64
	}{
		{
			name: "identical points",
			lat1: 37.5665, lng1: 126.9780,
			lat2: 37.5665, lng2: 126.9780,
			wantMeters: 0,
			tolerance:  0.001,
		},
		{
			// 0.009 degrees of latitude is 1.000 km by construction
			// (1 degree latitude ~= 111.19 km on the mean sphere).
			name: "one kilometer north",
			lat1: 37.5665, lng1: 126.9780,
			lat2: 37.5665 + 1.0/111.195, lng2: 126.9780,
			wantMeters: 1000,
			tolerance:  5,
		},
		{
			name: "seoul city hall to gangnam station",
			lat1: 37.5665, lng1: 126.9780,
			lat2: 37.4979, lng2: 127.0276,
			wantMeters: 8770,
			tolerance:  100,
		},
		{
			name: "antipodal points",
			lat1: 0, lng1: 0,
			lat2: 0, lng2: 180,
			wantMeters: math.Pi * 6371000,
			tolerance:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := geo.HaversineMeters(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.wantMeters) > tt.tolerance {
				t.Errorf("HaversineMeters() = %.3f, want %.3f ± %.3f", got, tt.wantMeters, tt.tolerance)
			}
		})
	}
}

func TestHaversineMeters_Symmetric(t *testing.T) {
	a := geo.HaversineMeters(37.5665, 126.9780, 35.1796, 129.0756)
	b := geo.HaversineMeters(35.1796, 129.0756, 37.5665, 126.9780)
	if math.Abs(a-b) > 1e-6 {
		t.Errorf("distance not symmetric: %.9f vs %.9f", a, b)
	}
}

func TestKMToAngularRadius(t *testing.T) {
	// 6378.1 km is one Earth radius, so the angular radius is exactly 1.
	if got := geo.KMToAngularRadius(6378.1); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("KMToAngularRadius(6378.1) = %v, want 1", got)
	}
	if got := geo.KMToAngularRadius(3); math.Abs(got-3.0/6378.1) > 1e-12 {
		t.Errorf("KMToAngularRadius(3) = %v, want %v", got, 3.0/6378.1)
	}
}

func TestMeters(t *testing.T) {
	if got := geo.Meters(2.5); got != 2500 {
		t.Errorf("Meters(2.5) = %v, want 2500", got)
	}
}
