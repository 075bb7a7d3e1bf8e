package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Fix is one GPS fix decoded from a GGA sentence.
type Fix struct {
	Lat float64
	Lon float64
	Alt float64 // metres above mean sea level
}

// ParseNMEACoord converts NMEA ddmm.mmmm to decimal degrees.
func ParseNMEACoord(value string, dir string) (float64, error) {
	if len(value) < 4 {
		return 0, fmt.Errorf("invalid nmea coord")
	}
	var degPart, minPart string
	// latitude has 2 digit degrees vs lon 3 digits; detect by dir
	if dir == "N" || dir == "S" {
		degPart = value[:2]
		minPart = value[2:]
	} else {
		degPart = value[:3]
		minPart = value[3:]
	}
	deg, err := strconv.ParseFloat(degPart, 64)
	if err != nil {
		return 0, err
	}
	min, err := strconv.ParseFloat(minPart, 64)
	if err != nil {
		return 0, err
	}
	dec := deg + min/60.0
	if dir == "S" || dir == "W" {
		dec = -dec
	}
	return dec, nil
}

// ToNMEACoord converts decimal degrees to ddmm.mmmm.
func ToNMEACoord(dec float64, isLat bool) (string, string) {
	dir := "N"
	if !isLat {
		dir = "E"
	}
	if dec < 0 {
		dec = -dec
		if isLat {
			dir = "S"
		} else {
			dir = "W"
		}
	}
	deg := int(dec)
	min := (dec - float64(deg)) * 60
	if isLat {
		return fmt.Sprintf("%02d%07.4f", deg, min), dir
	}
	return fmt.Sprintf("%03d%07.4f", deg, min), dir
}

// ParseGGA decodes a $GPGGA/$GNGGA sentence. Sentences without a fix are rejected.
func ParseGGA(line string) (Fix, error) {
	line = strings.TrimSpace(line)
	if i := strings.IndexByte(line, '*'); i >= 0 {
		line = line[:i]
	}
	if !strings.HasPrefix(line, "$GPGGA") && !strings.HasPrefix(line, "$GNGGA") {
		return Fix{}, fmt.Errorf("not a GGA sentence")
	}
	parts := strings.Split(line, ",")
	if len(parts) < 10 {
		return Fix{}, fmt.Errorf("expected at least 10 fields, got %d", len(parts))
	}
	if parts[6] == "" || parts[6] == "0" {
		return Fix{}, fmt.Errorf("no gps fix")
	}
	lat, err := ParseNMEACoord(parts[2], parts[3])
	if err != nil {
		return Fix{}, fmt.Errorf("invalid lat: %w", err)
	}
	lon, err := ParseNMEACoord(parts[4], parts[5])
	if err != nil {
		return Fix{}, fmt.Errorf("invalid lon: %w", err)
	}
	alt, _ := strconv.ParseFloat(parts[9], 64)
	return Fix{Lat: lat, Lon: lon, Alt: alt}, nil
}

// GGASentence renders a fix as a GGA sentence with a valid checksum.
func GGASentence(f Fix, utc string) string {
	latStr, latDir := ToNMEACoord(f.Lat, true)
	lonStr, lonDir := ToNMEACoord(f.Lon, false)
	body := fmt.Sprintf("GPGGA,%s,%s,%s,%s,%s,1,08,0.9,%.1f,M,0.0,M,,", utc, latStr, latDir, lonStr, lonDir, f.Alt)
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, sum)
}

const earthRadius = 6371000.0

// LocalFrame projects a fix onto a flat east/north plane around an origin, in metres.
// x points east and y north; the swarm only spans a few metres so the
// equirectangular approximation is exact enough.
func LocalFrame(origin, f Fix) (x, y, z float64) {
	lat0 := origin.Lat * math.Pi / 180
	x = (f.Lon - origin.Lon) * math.Pi / 180 * math.Cos(lat0) * earthRadius
	y = (f.Lat - origin.Lat) * math.Pi / 180 * earthRadius
	z = f.Alt - origin.Alt
	return x, y, z
}
