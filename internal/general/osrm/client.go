package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fieldnav/internal/domain/geo"
	"fieldnav/internal/domain/navigation"
	"fieldnav/internal/ports"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const maxBody = 8 << 20

// Client is a DirectionsProvider backed by an OSRM /route/v1 endpoint.
type Client struct {
	baseURL   string
	profile   string
	userAgent string
	http      *http.Client
}

func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		profile:   "driving",
		userAgent: userAgent,
		http:      &http.Client{Timeout: timeout},
	}
}

var _ ports.DirectionsProvider = (*Client)(nil)

type routeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64           `json:"distance"`
		Duration float64           `json:"duration"`
		Geometry *geojson.Geometry `json:"geometry"`
		Legs     []struct {
			Steps []step `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

type step struct {
	Distance float64           `json:"distance"`
	Duration float64           `json:"duration"`
	Name     string            `json:"name"`
	Geometry *geojson.Geometry `json:"geometry"`
	Maneuver struct {
		Type     string    `json:"type"`
		Modifier string    `json:"modifier"`
		Location []float64 `json:"location"` // [lng, lat]
	} `json:"maneuver"`
}

// Route asks OSRM for the primary route. OSRM has no live traffic, so
// opts.TrafficAware is accepted and ignored. "NoRoute" yields an empty route.
func (c *Client) Route(ctx context.Context, origin, destination geo.Coordinate, _ ports.RouteOptions) (navigation.Route, error) {
	u := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f",
		c.baseURL, c.profile, origin.Lng, origin.Lat, destination.Lng, destination.Lat)
	q := url.Values{}
	q.Set("steps", "true")
	q.Set("overview", "full")
	q.Set("geometries", "geojson")
	q.Set("alternatives", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+q.Encode(), nil)
	if err != nil {
		return navigation.Route{}, fmt.Errorf("osrm: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return navigation.Route{}, fmt.Errorf("osrm: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return navigation.Route{}, fmt.Errorf("osrm: read body: %w", err)
	}

	var parsed routeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return navigation.Route{}, fmt.Errorf("osrm: decode (status %d): %w", resp.StatusCode, err)
	}
	switch {
	case parsed.Code == "NoRoute":
		return navigation.Route{}, nil
	case resp.StatusCode != http.StatusOK || parsed.Code != "Ok":
		return navigation.Route{}, fmt.Errorf("osrm: status %d code %s: %s", resp.StatusCode, parsed.Code, parsed.Message)
	case len(parsed.Routes) == 0:
		return navigation.Route{}, nil
	}

	primary := parsed.Routes[0]
	route := navigation.Route{
		TotalDistanceMeters:  primary.Distance,
		TotalDurationSeconds: primary.Duration,
		Geometry:             coordinates(primary.Geometry),
	}
	for _, leg := range primary.Legs {
		for _, s := range leg.Steps {
			route.Steps = append(route.Steps, toRouteStep(s))
		}
	}
	return route, nil
}

func toRouteStep(s step) navigation.RouteStep {
	rs := navigation.RouteStep{
		InstructionText: instruction(s),
		DistanceMeters:  s.Distance,
		DurationSeconds: s.Duration,
	}
	if len(s.Maneuver.Location) == 2 {
		rs.StartCoord = geo.Coordinate{Lat: s.Maneuver.Location[1], Lng: s.Maneuver.Location[0]}
	}
	rs.EndCoord = rs.StartCoord
	if pts := coordinates(s.Geometry); len(pts) > 0 {
		rs.StartCoord = pts[0]
		rs.EndCoord = pts[len(pts)-1]
	}
	return rs
}

func coordinates(g *geojson.Geometry) []geo.Coordinate {
	if g == nil {
		return nil
	}
	ls, ok := g.Geometry().(orb.LineString)
	if !ok {
		return nil
	}
	out := make([]geo.Coordinate, 0, len(ls))
	for _, p := range ls {
		out = append(out, geo.FromPoint(p))
	}
	return out
}

// instruction renders an OSRM maneuver as a short English sentence.
func instruction(s step) string {
	onto := ""
	if s.Name != "" {
		onto = " onto " + s.Name
	}
	mod := s.Maneuver.Modifier

	switch s.Maneuver.Type {
	case "depart":
		if s.Name != "" {
			return "Head out on " + s.Name
		}
		return "Depart"
	case "arrive":
		return "Arrive at destination"
	case "turn", "end of road", "fork", "on ramp", "off ramp":
		if mod == "" || mod == "straight" {
			return "Continue" + onto
		}
		return "Turn " + mod + onto
	case "merge":
		return "Merge" + onto
	case "roundabout", "rotary", "roundabout turn":
		return "Enter the roundabout and exit" + onto
	case "new name", "continue", "notification":
		return "Continue" + onto
	default:
		if mod != "" {
			return "Go " + mod + onto
		}
		return "Continue" + onto
	}
}
