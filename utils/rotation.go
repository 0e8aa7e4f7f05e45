package utils

import (
	"strconv"
	"strings"
	"time"

	"leadpilot/models"
)

const (
	DefaultNiche = "negocios locales"

	zoomPrimary  = 15
	zoomFallback = 13
)

type nicheKey struct {
	week int
	day  int
}

// nicheTable maps (week of month, weekday) to the search keyword.
// Weekday 0 is Monday.
var nicheTable = map[nicheKey]string{
	{1, 0}: "salon de belleza",
	{1, 1}: "terapeutas",
	{1, 2}: "psicologos",
	{1, 3}: "gimnasio",
	{1, 4}: "dentista",
	{1, 5}: "inmobiliaria",
	{1, 6}: "despachos de abogados",

	{2, 0}: "barberia",
	{2, 1}: "nutriologos",
	{2, 2}: "veterinaria",
	{2, 3}: "estudio de yoga",
	{2, 4}: "clinica dental",
	{2, 5}: "agencias de seguros",
	{2, 6}: "contadores",

	{3, 0}: "spa",
	{3, 1}: "fisioterapeutas",
	{3, 2}: "escuela de idiomas",
	{3, 3}: "crossfit",
	{3, 4}: "ortodoncista",
	{3, 5}: "agencia de viajes",
	{3, 6}: "notarias",

	{4, 0}: "estetica canina",
	{4, 1}: "quiropracticos",
	{4, 2}: "guarderias",
	{4, 3}: "academia de baile",
	{4, 4}: "optica",
	{4, 5}: "taller mecanico",
	{4, 6}: "arquitectos",
}

// zoneTable is indexed 1..12; index 0 is unused.
var zoneTable = [13]models.Zone{
	{},
	{Name: "Guadalajara Centro", Latitude: 20.6736, Longitude: -103.3440},
	{Name: "Providencia", Latitude: 20.6900, Longitude: -103.3900},
	{Name: "Chapultepec", Latitude: 20.6747, Longitude: -103.3700},
	{Name: "Zapopan Centro", Latitude: 20.7214, Longitude: -103.3918},
	{Name: "Andares", Latitude: 20.7107, Longitude: -103.4114},
	{Name: "Tlaquepaque", Latitude: 20.6409, Longitude: -103.2933},
	{Name: "Tonala", Latitude: 20.6240, Longitude: -103.2340},
	{Name: "Tlajomulco", Latitude: 20.4736, Longitude: -103.4431},
	{Name: "Chapalita", Latitude: 20.6655, Longitude: -103.3990},
	{Name: "Ciudad Granja", Latitude: 20.6810, Longitude: -103.4390},
	{Name: "Oblatos", Latitude: 20.6960, Longitude: -103.3040},
	{Name: "Santa Tere", Latitude: 20.6846, Longitude: -103.3650},
}

// ZoneCount is the number of zones in the monthly rotation.
const ZoneCount = len(zoneTable) - 1

// WeekOfMonth buckets a day of the month: 1-7, 8-14, 15-21, 22-31.
func WeekOfMonth(day int) int {
	switch {
	case day <= 7:
		return 1
	case day <= 14:
		return 2
	case day <= 21:
		return 3
	}
	return 4
}

// Weekday returns 0 for Monday through 6 for Sunday.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// ZoneIndex returns the 1-based zone for a calendar month shifted by offset.
func ZoneIndex(month, offset int) int {
	idx := (month - 1 + offset) % ZoneCount
	if idx < 0 {
		idx += ZoneCount
	}
	return idx + 1
}

// NicheFor looks up the niche for a week bucket and weekday, falling back to
// DefaultNiche for combinations not in the table.
func NicheFor(week, day int) string {
	if niche, ok := nicheTable[nicheKey{week, day}]; ok {
		return niche
	}
	return DefaultNiche
}

// ParseDayOverride turns a CLI argument into a weekday override. Anything
// that is not an integer yields nil; range checking happens in ResolveTarget.
func ParseDayOverride(arg string) *int {
	day, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return nil
	}
	return &day
}

// ResolveTarget computes the search target for today. An override outside
// 0..6 is ignored and the wall-clock weekday is used instead.
func ResolveTarget(today time.Time, dayOverride *int, zoneOffset int) models.RotationTarget {
	day := Weekday(today)
	if dayOverride != nil && *dayOverride >= 0 && *dayOverride <= 6 {
		day = *dayOverride
	}

	week := WeekOfMonth(today.Day())
	month := int(today.Month())
	idx := ZoneIndex(month, zoneOffset)
	zone := zoneTable[idx]

	zoom := zoomPrimary
	if zoneOffset > 0 {
		zoom = zoomFallback
	}

	return models.RotationTarget{
		Niche:       NicheFor(week, day),
		ZoneName:    zone.Name,
		ZoneIndex:   idx,
		Latitude:    zone.Latitude,
		Longitude:   zone.Longitude,
		ZoomLevel:   zoom,
		WeekOfMonth: week,
		DayOfWeek:   day,
		Month:       month,
		ZoneOffset:  zoneOffset,
	}
}
