package geo

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseCoordinate(t *testing.T) {
	c, err := ParseCoordinate(" 33.749, -84.390 ")
	if err != nil {
		t.Fatalf("ParseCoordinate: %v", err)
	}
	if c.Lat != 33.749 || c.Lng != -84.390 {
		t.Fatalf("got %+v", c)
	}

	if _, err := ParseCoordinate("33.749"); !errors.Is(err, ErrInvalidCoordinate) {
		t.Fatalf("want ErrInvalidCoordinate, got %v", err)
	}
	if _, err := ParseCoordinate("91,0"); !errors.Is(err, ErrInvalidLatitude) {
		t.Fatalf("want ErrInvalidLatitude, got %v", err)
	}
	if _, err := ParseCoordinate("0,181"); !errors.Is(err, ErrInvalidLongitude) {
		t.Fatalf("want ErrInvalidLongitude, got %v", err)
	}
}

func TestValidateRejectsNaN(t *testing.T) {
	if err := (Coordinate{Lat: math.NaN(), Lng: 0}).Validate(); !errors.Is(err, ErrInvalidLatitude) {
		t.Fatalf("want ErrInvalidLatitude, got %v", err)
	}
}

func TestDistanceMeters(t *testing.T) {
	a := Coordinate{Lat: 33.749, Lng: -84.390}
	if d := DistanceMeters(a, a); d != 0 {
		t.Fatalf("distance to self = %v", d)
	}

	// one thousandth of a degree of latitude is ~111 m
	b := Coordinate{Lat: 33.750, Lng: -84.390}
	d := DistanceMeters(a, b)
	if d < 105 || d > 115 {
		t.Fatalf("distance = %v, want ~111m", d)
	}
	if DistanceMeters(b, a) != d {
		t.Fatalf("distance not symmetric")
	}
}

func TestPointRoundTrip(t *testing.T) {
	c := Coordinate{Lat: 33.8, Lng: -84.35}
	if got := FromPoint(c.Point()); got != c {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestNewLocationHistory(t *testing.T) {
	acc := 5.0
	rec, err := NewLocationHistory(" tech-1 ", nil, Coordinate{Lat: 1, Lng: 2}, &acc, time.Time{})
	if err != nil {
		t.Fatalf("NewLocationHistory: %v", err)
	}
	if rec.TechnicianID != "tech-1" || rec.RecordedAt.IsZero() {
		t.Fatalf("unexpected record %+v", rec)
	}

	neg := -1.0
	if _, err := NewLocationHistory("tech-1", nil, Coordinate{}, &neg, time.Now()); !errors.Is(err, ErrNegativeAccuracy) {
		t.Fatalf("want ErrNegativeAccuracy, got %v", err)
	}
	if _, err := NewLocationHistory("", nil, Coordinate{}, nil, time.Now()); !errors.Is(err, ErrMissingTechnicianID) {
		t.Fatalf("want ErrMissingTechnicianID, got %v", err)
	}
}
