package pricing

import (
	"math"
	"time"
)

// Band is a half-open hour interval [From, To) in the tariff's zone.
// From > To wraps past midnight.
type Band struct {
	From int `mapstructure:"from"`
	To   int `mapstructure:"to"`
}

func (b Band) contains(hour int) bool {
	if b.From <= b.To {
		return hour >= b.From && hour < b.To
	}
	return hour >= b.From || hour < b.To
}

// Tariff holds fare parameters. The zero value is not usable; start from Default.
type Tariff struct {
	BaseFee       float64        `mapstructure:"base_fee"`
	NearRatePerKm float64        `mapstructure:"near_rate_per_km"`
	FarRatePerKm  float64        `mapstructure:"far_rate_per_km"`
	NearLimitKm   float64        `mapstructure:"near_limit_km"`
	MinFare       float64        `mapstructure:"min_fare"`
	MinDistanceKm float64        `mapstructure:"min_distance_km"`
	RoundingStep  float64        `mapstructure:"rounding_step"`
	RushBands     []Band         `mapstructure:"rush_bands"`
	RushFactor    float64        `mapstructure:"rush_factor"`
	NightBand     Band           `mapstructure:"night_band"`
	NightFactor   float64        `mapstructure:"night_factor"`
	WeekendDays   []time.Weekday `mapstructure:"-"`
	WeekendFactor float64        `mapstructure:"weekend_factor"`
	Location      *time.Location `mapstructure:"-"`
}

// Default returns the production tariff.
func Default() Tariff {
	return Tariff{
		BaseFee:       10,
		NearRatePerKm: 3.2,
		FarRatePerKm:  2.6,
		NearLimitKm:   15,
		MinFare:       15,
		MinDistanceKm: 1,
		RoundingStep:  0.5,
		RushBands:     []Band{{From: 11, To: 15}, {From: 18, To: 20}},
		RushFactor:    1.25,
		NightBand:     Band{From: 22, To: 5},
		NightFactor:   1.15,
		WeekendDays:   []time.Weekday{time.Friday, time.Saturday},
		WeekendFactor: 1.10,
	}
}

// In returns a copy of t evaluating hours in loc.
func (t Tariff) In(loc *time.Location) Tariff {
	t.Location = loc
	return t
}

// Multiplier returns the composed surge factor at the given instant.
func (t Tariff) Multiplier(at time.Time) float64 {
	if t.Location != nil {
		at = at.In(t.Location)
	}
	hour := at.Hour()

	m := 1.0
	for _, b := range t.RushBands {
		if b.contains(hour) {
			m *= t.RushFactor
			break
		}
	}
	if t.NightBand != (Band{}) && t.NightBand.contains(hour) {
		m *= t.NightFactor
	}
	for _, d := range t.WeekendDays {
		if at.Weekday() == d {
			m *= t.WeekendFactor
			break
		}
	}
	return m
}

// Quote prices a delivery of distanceKm requested at the given instant.
// Non-finite or negative distances price at 0.
func (t Tariff) Quote(distanceKm float64, at time.Time) float64 {
	if math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) || distanceKm < 0 {
		return 0
	}
	if distanceKm < t.MinDistanceKm {
		distanceKm = t.MinDistanceKm
	}

	near := math.Min(distanceKm, t.NearLimitKm) * t.NearRatePerKm
	far := math.Max(distanceKm-t.NearLimitKm, 0) * t.FarRatePerKm
	fare := (t.BaseFee + near + far) * t.Multiplier(at)

	if t.RoundingStep > 0 {
		fare = math.Round(fare/t.RoundingStep) * t.RoundingStep
	}
	return math.Max(fare, t.MinFare)
}
