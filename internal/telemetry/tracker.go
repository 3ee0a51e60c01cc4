package telemetry

import (
	"context"
	"sort"
	"sync"
	"time"

	"skyroute/internal/models"
)

// DefaultStaleAfter drops aircraft that have not been heard from for this long
const DefaultStaleAfter = 60 * time.Second

type trackState struct {
	aircraft    models.Aircraft
	hasPosition bool
	seen        time.Time
}

// Tracker merges SBS messages per ICAO address into live aircraft states.
// Identification, position and velocity arrive in separate messages, so each update
// only overwrites the fields it carries.
type Tracker struct {
	mu         sync.Mutex
	states     map[string]*trackState
	staleAfter time.Duration
	classifier *Classifier
	now        func() time.Time
}

// NewTracker creates a tracker. classifier may be nil.
func NewTracker(staleAfter time.Duration, classifier *Classifier) *Tracker {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if classifier == nil {
		classifier = NewClassifier(nil, nil)
	}
	return &Tracker{
		states:     make(map[string]*trackState),
		staleAfter: staleAfter,
		classifier: classifier,
		now:        time.Now,
	}
}

// Name identifies the source in logs and results
func (t *Tracker) Name() string {
	return "sbs"
}

// Update applies one decoded message
func (t *Tracker) Update(msg *models.SBSMessage) {
	if msg == nil || msg.ICAO == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[msg.ICAO]
	if !ok {
		st = &trackState{aircraft: models.Aircraft{ID: msg.ICAO}}
		t.states[msg.ICAO] = st
	}

	ac := &st.aircraft
	if msg.Callsign != "" && msg.Callsign != ac.Callsign {
		ac.Callsign = msg.Callsign
		ac.Category = ""
	}
	if msg.HasAltitude {
		ac.AltitudeFt = msg.AltitudeFt
	}
	if msg.HasVelocity {
		ac.VelocityKts = msg.GroundSpeedKts
		ac.Heading = msg.Track
	}
	if msg.HasPosition {
		ac.Lat = msg.Lat
		ac.Lon = msg.Lon
		st.hasPosition = true
	}

	st.seen = t.now()
	ac.LastSeen = st.seen
}

// Fetch returns positioned aircraft heard within the stale window, ordered by ICAO address.
// Stale entries are evicted.
func (t *Tracker) Fetch(ctx context.Context) ([]models.Aircraft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.staleAfter)
	fleet := make([]models.Aircraft, 0, len(t.states))
	for icao, st := range t.states {
		if st.seen.Before(cutoff) {
			delete(t.states, icao)
			continue
		}
		if !st.hasPosition {
			continue
		}
		if st.aircraft.Category == "" {
			st.aircraft.Category = t.classifier.Classify(icao, st.aircraft.Callsign)
		}
		fleet = append(fleet, st.aircraft)
	}

	sort.Slice(fleet, func(i, j int) bool {
		return fleet[i].ID < fleet[j].ID
	})
	return fleet, nil
}

// Len returns the number of tracked addresses, positioned or not
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}
