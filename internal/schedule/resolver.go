// internal/schedule/resolver.go
package schedule

import (
	"math"
	"strings"
	"time"
)

// OffsetResolver maps a named timezone to its UTC offset in hours. The
// default implementation is a fixed table; the interface leaves room for a
// real timezone database later without touching the evaluator.
type OffsetResolver interface {
	// OffsetHours returns the offset and whether the zone was recognized.
	OffsetHours(name string) (float64, bool)
}

// FixedOffsetTable is the supported-zone table. No DST handling: each zone
// maps to one fixed offset. This is an intentional simplification.
type FixedOffsetTable map[string]float64

// DefaultOffsets returns the zones the settings UI offers.
func DefaultOffsets() FixedOffsetTable {
	return FixedOffsetTable{
		"UTC": 0,
		"GMT": 0,
		"EST": -5,
		"PST": -8,
		"IST": 5.5,
		"JST": 9,
	}
}

func (t FixedOffsetTable) OffsetHours(name string) (float64, bool) {
	off, ok := t[strings.ToUpper(strings.TrimSpace(name))]
	return off, ok
}

// Resolver converts between a user's local wall clock and UTC.
type Resolver struct {
	offsets OffsetResolver
}

func NewResolver(offsets OffsetResolver) *Resolver {
	if offsets == nil {
		offsets = DefaultOffsets()
	}
	return &Resolver{offsets: offsets}
}

// offsetFor degrades an unknown zone to UTC rather than failing, so a
// misconfigured schedule still fires instead of silently never matching.
func (r *Resolver) offsetFor(timezone string) float64 {
	off, ok := r.offsets.OffsetHours(timezone)
	if !ok {
		return 0
	}
	return off
}

// LocalHourToUTC converts a local hour to the equivalent UTC hour. The
// result is fractional for half-hour zones like IST; callers matching
// against an integer current hour must truncate with FloorHour.
func (r *Resolver) LocalHourToUTC(localHour int, timezone string) float64 {
	return math.Mod(float64(localHour)-r.offsetFor(timezone)+24, 24)
}

// UTCHourToLocal is the complementary direction of LocalHourToUTC.
func (r *Resolver) UTCHourToLocal(utcHour float64, timezone string) float64 {
	return math.Mod(utcHour+r.offsetFor(timezone)+24, 24)
}

// FloorHour truncates a fractional hour to the hour bucket an hourly tick
// compares against. A :30-shifted target can only be matched at hour
// granularity.
func FloorHour(hour float64) int {
	return int(math.Floor(hour))
}

// MatchesUTCHour reports whether a user-local send hour falls in the current
// UTC hour bucket.
func (r *Resolver) MatchesUTCHour(localHour int, timezone string, nowUTC time.Time) bool {
	return FloorHour(r.LocalHourToUTC(localHour, timezone)) == nowUTC.UTC().Hour()
}

// CurrentLocalWeekday returns the lowercase English weekday name of nowUTC
// rendered in the given zone.
func (r *Resolver) CurrentLocalWeekday(nowUTC time.Time, timezone string) string {
	offsetMinutes := int(r.offsetFor(timezone) * 60)
	local := nowUTC.UTC().Add(time.Duration(offsetMinutes) * time.Minute)
	return strings.ToLower(local.Weekday().String())
}
