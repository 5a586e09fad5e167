package pricing

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load reads tariff overrides from path (yaml, json or toml) on top of Default.
// An empty path returns Default.
func Load(path string, loc *time.Location) (Tariff, error) {
	t := Default().In(loc)
	if strings.TrimSpace(path) == "" {
		return t, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Tariff{}, fmt.Errorf("read tariff %s: %w", path, err)
	}
	if err := v.Unmarshal(&t); err != nil {
		return Tariff{}, fmt.Errorf("decode tariff %s: %w", path, err)
	}

	if v.IsSet("weekend_days") {
		days, err := parseWeekdays(v.GetStringSlice("weekend_days"))
		if err != nil {
			return Tariff{}, err
		}
		t.WeekendDays = days
	}
	if err := t.validate(); err != nil {
		return Tariff{}, fmt.Errorf("tariff %s: %w", path, err)
	}
	return t, nil
}

func (t Tariff) validate() error {
	switch {
	case t.BaseFee < 0, t.NearRatePerKm < 0, t.FarRatePerKm < 0:
		return fmt.Errorf("fees must be non-negative")
	case t.MinFare < 0 || t.MinDistanceKm < 0:
		return fmt.Errorf("minimums must be non-negative")
	case t.NearLimitKm <= 0:
		return fmt.Errorf("near_limit_km must be positive")
	case t.RushFactor <= 0 || t.NightFactor <= 0 || t.WeekendFactor <= 0:
		return fmt.Errorf("surcharge factors must be positive")
	}
	return nil
}

func parseWeekdays(names []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		found := false
		for d := time.Sunday; d <= time.Saturday; d++ {
			if strings.EqualFold(d.String(), strings.TrimSpace(n)) || strings.EqualFold(d.String()[:3], strings.TrimSpace(n)) {
				out = append(out, d)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown weekday %q", n)
		}
	}
	return out, nil
}
