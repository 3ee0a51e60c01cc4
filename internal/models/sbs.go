package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SBS (BaseStation) field layout as emitted by dump1090 on port 30003
const (
	sbsFieldMessageType      = 0
	sbsFieldTransmissionType = 1
	sbsFieldHexIdent         = 4
	sbsFieldDateGenerated    = 6
	sbsFieldTimeGenerated    = 7
	sbsFieldCallsign         = 10
	sbsFieldAltitude         = 11
	sbsFieldGroundSpeed      = 12
	sbsFieldTrack            = 13
	sbsFieldLatitude         = 14
	sbsFieldLongitude        = 15
	sbsFieldVerticalRate     = 16

	// SBSMinFields is the number of fields up to and including vertical rate
	SBSMinFields = 17

	sbsTimeLayout = "2006/01/02 15:04:05.000"
)

// SBSMessage is one decoded BaseStation MSG line
type SBSMessage struct {
	Timestamp        time.Time
	TransmissionType int
	ICAO             string
	Callsign         string
	AltitudeFt       float64
	GroundSpeedKts   float64
	Track            float64
	Lat              float64
	Lon              float64
	VerticalRateFpm  float64
	Raw              string

	HasAltitude bool
	HasVelocity bool
	HasPosition bool
}

// ParseSBSMessage parses a single BaseStation line.
// Only MSG records are accepted; empty fields are left unset and flagged through the Has* fields.
func ParseSBSMessage(line string) (*SBSMessage, error) {
	line = strings.TrimSpace(line)
	fields := strings.Split(line, ",")
	if len(fields) < SBSMinFields {
		return nil, fmt.Errorf("sbs message too short: %d fields", len(fields))
	}

	if fields[sbsFieldMessageType] != "MSG" {
		return nil, fmt.Errorf("unsupported sbs message type: %q", fields[sbsFieldMessageType])
	}

	transmissionType, err := strconv.Atoi(fields[sbsFieldTransmissionType])
	if err != nil || transmissionType < 1 || transmissionType > 8 {
		return nil, fmt.Errorf("invalid transmission type: %q", fields[sbsFieldTransmissionType])
	}

	icao := strings.ToUpper(strings.TrimSpace(fields[sbsFieldHexIdent]))
	if len(icao) != 6 {
		return nil, fmt.Errorf("invalid hex ident: %q", fields[sbsFieldHexIdent])
	}

	msg := &SBSMessage{
		Timestamp:        parseSBSTime(fields[sbsFieldDateGenerated], fields[sbsFieldTimeGenerated]),
		TransmissionType: transmissionType,
		ICAO:             icao,
		Callsign:         strings.TrimSpace(fields[sbsFieldCallsign]),
		Raw:              line,
	}

	if v, ok, err := parseOptionalFloat(fields[sbsFieldAltitude]); err != nil {
		return nil, fmt.Errorf("invalid altitude: %w", err)
	} else if ok {
		msg.AltitudeFt = v
		msg.HasAltitude = true
	}

	speed, hasSpeed, err := parseOptionalFloat(fields[sbsFieldGroundSpeed])
	if err != nil {
		return nil, fmt.Errorf("invalid ground speed: %w", err)
	}
	track, hasTrack, err := parseOptionalFloat(fields[sbsFieldTrack])
	if err != nil {
		return nil, fmt.Errorf("invalid track: %w", err)
	}
	if hasSpeed || hasTrack {
		msg.GroundSpeedKts = speed
		msg.Track = track
		msg.HasVelocity = true
	}

	lat, hasLat, err := parseOptionalFloat(fields[sbsFieldLatitude])
	if err != nil {
		return nil, fmt.Errorf("invalid latitude: %w", err)
	}
	lon, hasLon, err := parseOptionalFloat(fields[sbsFieldLongitude])
	if err != nil {
		return nil, fmt.Errorf("invalid longitude: %w", err)
	}
	if hasLat && hasLon {
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("position out of range: %v,%v", lat, lon)
		}
		msg.Lat = lat
		msg.Lon = lon
		msg.HasPosition = true
	}

	if v, ok, err := parseOptionalFloat(fields[sbsFieldVerticalRate]); err == nil && ok {
		msg.VerticalRateFpm = v
	}

	return msg, nil
}

// parseSBSTime falls back to the receive time when the generated timestamp is missing or malformed
func parseSBSTime(date, clock string) time.Time {
	if date == "" || clock == "" {
		return time.Now()
	}
	ts, err := time.ParseInLocation(sbsTimeLayout, date+" "+clock, time.Local)
	if err != nil {
		return time.Now()
	}
	return ts
}

func parseOptionalFloat(s string) (float64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
