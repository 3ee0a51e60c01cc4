package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"skyroute/internal/models"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultOpenSkyURL      = "https://opensky-network.org/api"
	DefaultOpenSkyTokenURL = "https://auth.opensky-network.org/auth/realms/opensky-network/protocol/openid-connect/token"

	metersToFeet = 3.28084
	msToKnots    = 1.943844
)

// OpenSky state vector positions
const (
	stateICAO24 = iota
	stateCallsign
	stateOriginCountry
	stateTimePosition
	stateLastContact
	stateLongitude
	stateLatitude
	stateBaroAltitude
	stateOnGround
	stateVelocity
	stateTrueTrack
	stateVerticalRate
	stateSensors
	stateGeoAltitude

	stateMinFields = stateGeoAltitude + 1
)

// BoundingBox limits the OpenSky query area, zero value means worldwide
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// IsZero reports whether no bounding box was configured
func (b BoundingBox) IsZero() bool {
	return b == BoundingBox{}
}

// OpenSkyConfig holds OpenSky client settings
type OpenSkyConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	BBox         BoundingBox
	Timeout      time.Duration
}

// OpenSky fetches state vectors from the OpenSky Network REST API
type OpenSky struct {
	client     *http.Client
	baseURL    string
	bbox       BoundingBox
	classifier *Classifier
}

// NewOpenSky creates an OpenSky source. Requests are authenticated with OAuth2 client
// credentials when a client id is configured and sent anonymously otherwise.
func NewOpenSky(cfg OpenSkyConfig, classifier *Classifier) *OpenSky {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOpenSkyURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	if cfg.ClientID != "" {
		tokenURL := cfg.TokenURL
		if tokenURL == "" {
			tokenURL = DefaultOpenSkyTokenURL
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
		}
		client = cc.Client(context.Background())
		client.Timeout = timeout
	}

	if classifier == nil {
		classifier = NewClassifier(nil, nil)
	}

	return &OpenSky{
		client:     client,
		baseURL:    baseURL,
		bbox:       cfg.BBox,
		classifier: classifier,
	}
}

// Name identifies the source in logs and results
func (o *OpenSky) Name() string {
	return "opensky"
}

type statesResponse struct {
	Time   int64   `json:"time"`
	States [][]any `json:"states"`
}

// Fetch returns every airborne aircraft with a known position inside the bounding box
func (o *OpenSky) Fetch(ctx context.Context) ([]models.Aircraft, error) {
	endpoint := o.baseURL + "/states/all"
	if !o.bbox.IsZero() {
		q := url.Values{}
		q.Set("lamin", formatCoord(o.bbox.MinLat))
		q.Set("lomin", formatCoord(o.bbox.MinLon))
		q.Set("lamax", formatCoord(o.bbox.MaxLat))
		q.Set("lomax", formatCoord(o.bbox.MaxLon))
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query opensky: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("opensky returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload statesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode opensky response: %w", err)
	}

	return o.convert(payload), nil
}

func (o *OpenSky) convert(payload statesResponse) []models.Aircraft {
	fleet := make([]models.Aircraft, 0, len(payload.States))
	for _, state := range payload.States {
		ac, ok := o.parseState(state, payload.Time)
		if !ok {
			continue
		}
		fleet = append(fleet, ac)
	}
	return fleet
}

// parseState converts one positional state vector; vectors without a position or on the ground are skipped
func (o *OpenSky) parseState(state []any, snapshot int64) (models.Aircraft, bool) {
	if len(state) < stateMinFields {
		return models.Aircraft{}, false
	}

	icao, _ := state[stateICAO24].(string)
	lat, hasLat := state[stateLatitude].(float64)
	lon, hasLon := state[stateLongitude].(float64)
	if icao == "" || !hasLat || !hasLon {
		return models.Aircraft{}, false
	}
	if onGround, _ := state[stateOnGround].(bool); onGround {
		return models.Aircraft{}, false
	}

	callsign, _ := state[stateCallsign].(string)
	callsign = strings.TrimSpace(callsign)

	altitude, ok := state[stateBaroAltitude].(float64)
	if !ok {
		altitude, _ = state[stateGeoAltitude].(float64)
	}
	velocity, _ := state[stateVelocity].(float64)
	track, _ := state[stateTrueTrack].(float64)

	lastSeen := time.Unix(snapshot, 0)
	if contact, ok := state[stateLastContact].(float64); ok {
		lastSeen = time.Unix(int64(contact), 0)
	}

	id := strings.ToUpper(icao)
	return models.Aircraft{
		ID:          id,
		Callsign:    callsign,
		Lat:         lat,
		Lon:         lon,
		AltitudeFt:  altitude * metersToFeet,
		VelocityKts: velocity * msToKnots,
		Heading:     track,
		Category:    o.classifier.Classify(id, callsign),
		LastSeen:    lastSeen,
	}, true
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
