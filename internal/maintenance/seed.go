package maintenance

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/pricing"
)

// seedNamespace keeps fixture ids stable across runs.
var seedNamespace = uuid.MustParse("6f1c2a0e-5b7d-4c8e-9a3f-2d1e0b9c8a71")

type city struct {
	Name string
	Loc  geo.Point
}

var cities = []city{
	{"Afula", geo.Point{Lat: 32.6091, Lng: 35.2892}},
	{"Tel Aviv", geo.Point{Lat: 32.0853, Lng: 34.7818}},
	{"Haifa", geo.Point{Lat: 32.7940, Lng: 34.9896}},
	{"Jerusalem", geo.Point{Lat: 31.7683, Lng: 35.2137}},
	{"Beer Sheva", geo.Point{Lat: 31.2529, Lng: 34.7915}},
	{"Netanya", geo.Point{Lat: 32.3215, Lng: 34.8532}},
	{"Rishon LeZion", geo.Point{Lat: 31.9730, Lng: 34.7925}},
	{"Eilat", geo.Point{Lat: 29.5577, Lng: 34.9519}},
	{"Petah Tikva", geo.Point{Lat: 32.0871, Lng: 34.8878}},
	{"Holon", geo.Point{Lat: 32.0102, Lng: 34.7790}},
	{"Ashdod", geo.Point{Lat: 31.8044, Lng: 34.6553}},
	{"Herzliya", geo.Point{Lat: 32.1663, Lng: 34.8436}},
}

var items = []string{"Flowers", "Documents", "Pizza", "Laptop", "Groceries", "Books", "Medicine", "Shoes"}

// statusBuckets skews fixtures towards finished work.
var statusBuckets = []domain.Status{
	domain.StatusPosted, domain.StatusPosted,
	domain.StatusAccepted, domain.StatusAccepted,
	domain.StatusPickedUp, domain.StatusPickedUp,
	domain.StatusDelivered, domain.StatusDelivered, domain.StatusDelivered, domain.StatusDelivered,
}

// FixtureOptions size the demo data set.
type FixtureOptions struct {
	Couriers              int
	Businesses            int
	DeliveriesPerBusiness int
	Now                   time.Time
	Seed                  int64
	Tariff                pricing.Tariff
}

// DefaultFixtureOptions mirrors the demo environment.
func DefaultFixtureOptions(now time.Time) FixtureOptions {
	return FixtureOptions{
		Couriers:              20,
		Businesses:            12,
		DeliveriesPerBusiness: 8,
		Now:                   now,
		Seed:                  1,
		Tariff:                pricing.Default(),
	}
}

// Fixtures is a consistent set of accounts and deliveries.
type Fixtures struct {
	Accounts   []domain.Profile
	Deliveries []domain.Delivery
}

func fixtureID(kind string, i int) uuid.UUID {
	return uuid.NewSHA1(seedNamespace, []byte(fmt.Sprintf("%s-%d", kind, i)))
}

// BuildFixtures generates demo data. Ids depend only on position, so a rerun
// produces the same keys and inserts nothing new.
func BuildFixtures(opt FixtureOptions) Fixtures {
	rng := rand.New(rand.NewSource(opt.Seed))
	var fx Fixtures

	couriers := make([]domain.Profile, 0, opt.Couriers)
	for i := 0; i < opt.Couriers; i++ {
		couriers = append(couriers, domain.Profile{
			ID:    fixtureID("courier", i).String(),
			Email: fmt.Sprintf("courier%02d@demo.local", i+1),
			Role:  domain.RoleCourier,
			Name:  fmt.Sprintf("Courier %02d", i+1),
		})
	}
	balance := make(map[string]float64, len(couriers))

	for b := 0; b < opt.Businesses; b++ {
		home := cities[b%len(cities)]
		loc := near(rng, home.Loc)
		biz := domain.Profile{
			ID:       fixtureID("business", b).String(),
			Email:    fmt.Sprintf("business%02d@demo.local", b+1),
			Role:     domain.RoleBusiness,
			Name:     fmt.Sprintf("%s Shop %d", home.Name, b+1),
			Address:  home.Name,
			Location: &loc,
		}
		fx.Accounts = append(fx.Accounts, biz)

		for k := 0; k < opt.DeliveriesPerBusiness; k++ {
			dest := cities[rng.Intn(len(cities))]
			d := fixtureDelivery(rng, opt, b*opt.DeliveriesPerBusiness+k, biz, dest, couriers)
			if d.Status == domain.StatusDelivered && d.DeliveredBy != nil {
				balance[*d.DeliveredBy] += d.Payment
			}
			fx.Deliveries = append(fx.Deliveries, d)
		}
	}

	for _, c := range couriers {
		c.Balance = math.Round(balance[c.ID]*100) / 100
		fx.Accounts = append(fx.Accounts, c)
	}
	return fx
}

func fixtureDelivery(
	rng *rand.Rand,
	opt FixtureOptions,
	n int,
	biz domain.Profile,
	dest city,
	couriers []domain.Profile,
) domain.Delivery {
	destLoc := near(rng, dest.Loc)
	// последние три месяца, ближе к текущему моменту
	age := time.Duration(math.Pow(rng.Float64(), 1.2) * float64(90*24*time.Hour))
	created := opt.Now.Add(-age).UTC().Truncate(time.Second)

	d := domain.Delivery{
		ID:                  fixtureID("delivery", n),
		BusinessID:          biz.ID,
		BusinessName:        biz.Name,
		BusinessAddress:     biz.Address,
		BusinessLocation:    *biz.Location,
		DestinationAddress:  dest.Name,
		DestinationLocation: destLoc,
		Item:                items[rng.Intn(len(items))],
		Payment:             opt.Tariff.Quote(geo.DistanceKm(*biz.Location, destLoc), created),
		Status:              statusBuckets[rng.Intn(len(statusBuckets))],
		CreatedAt:           created,
		UpdatedAt:           created,
	}
	if d.Status == domain.StatusPosted || len(couriers) == 0 {
		d.Status = domain.StatusPosted
		return d
	}

	courier := couriers[rng.Intn(len(couriers))].ID
	at := created.Add(time.Duration(5+rng.Intn(30)) * time.Minute)
	d.AssignedTo = &courier
	d.AcceptedAt = &at
	d.UpdatedAt = at
	if d.Status == domain.StatusAccepted {
		return d
	}

	picked := at.Add(time.Duration(5+rng.Intn(20)) * time.Minute)
	d.PickedUpAt = &picked
	d.UpdatedAt = picked
	if d.Status == domain.StatusPickedUp {
		return d
	}

	done := picked.Add(time.Duration(10+rng.Intn(60)) * time.Minute)
	d.DeliveredAt = &done
	d.DeliveredBy = &courier
	d.UpdatedAt = done
	return d
}

func near(rng *rand.Rand, p geo.Point) geo.Point {
	return geo.Point{
		Lat: p.Lat + (rng.Float64()-0.5)*0.01,
		Lng: p.Lng + (rng.Float64()-0.5)*0.01,
	}
}

// AccountInserter writes accounts without touching existing rows.
type AccountInserter interface {
	InsertIfAbsent(ctx context.Context, p domain.Profile) (bool, error)
}

// DeliveryInserter writes deliveries without touching existing rows.
type DeliveryInserter interface {
	InsertIfAbsent(ctx context.Context, d domain.Delivery) (bool, error)
}

// SeedResult counts rows actually written.
type SeedResult struct {
	Accounts   int
	Deliveries int
	Skipped    int
}

// Seed inserts fx. Existing rows are never modified or deleted.
func Seed(ctx context.Context, accounts AccountInserter, deliveries DeliveryInserter, fx Fixtures, logger logx.Logger) (SeedResult, error) {
	if logger == nil {
		logger = logx.Nop()
	}
	var res SeedResult

	for _, p := range fx.Accounts {
		ok, err := accounts.InsertIfAbsent(ctx, p)
		if err != nil {
			return res, err
		}
		if ok {
			res.Accounts++
		} else {
			res.Skipped++
		}
	}
	for _, d := range fx.Deliveries {
		ok, err := deliveries.InsertIfAbsent(ctx, d)
		if err != nil {
			return res, err
		}
		if ok {
			res.Deliveries++
		} else {
			res.Skipped++
		}
	}

	logger.Info("seed finished",
		logx.Int("accounts", res.Accounts),
		logx.Int("deliveries", res.Deliveries),
		logx.Int("skipped", res.Skipped),
	)
	return res, nil
}
