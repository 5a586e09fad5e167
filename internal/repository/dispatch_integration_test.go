//go:build integration

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/maintenance"
	"courier-dispatch/internal/pricing"
	"courier-dispatch/internal/repository"
	"courier-dispatch/internal/service/delivery"
	"courier-dispatch/internal/visibility"
)

type DispatchRepositorySuite struct {
	suite.Suite

	ctx        context.Context
	cancel     context.CancelFunc
	accounts   *repository.AccountRepo
	deliveries *repository.DeliveryRepo
	history    *repository.LocationHistoryRepo
	reports    *repository.ReportRepo
}

func (s *DispatchRepositorySuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 2*time.Minute)
	s.accounts = repository.NewAccountRepo(tcPool)
	s.deliveries = repository.NewDeliveryRepo(tcPool)
	s.history = repository.NewLocationHistoryRepo(tcPool)
	s.reports = repository.NewReportRepo(tcPool)
}

func (s *DispatchRepositorySuite) TearDownSuite() {
	s.cancel()
}

func (s *DispatchRepositorySuite) SetupTest() {
	_, err := tcPool.Exec(s.ctx, `TRUNCATE deliveries, courier_location_history, accounts CASCADE`)
	s.Require().NoError(err)
}

var telAviv = geo.Point{Lat: 32.0853, Lng: 34.7818}

func (s *DispatchRepositorySuite) business(id string) domain.Profile {
	loc := telAviv
	p := domain.Profile{ID: id, Email: id + "@x", Role: domain.RoleBusiness, Name: "Shop " + id, Address: "Dizengoff 1", Location: &loc}
	ok, err := s.accounts.InsertIfAbsent(s.ctx, p)
	s.Require().NoError(err)
	s.Require().True(ok)
	return p
}

func (s *DispatchRepositorySuite) courier(id string) domain.Profile {
	p := domain.Profile{ID: id, Email: id + "@x", Role: domain.RoleCourier, Name: "Courier " + id}
	ok, err := s.accounts.InsertIfAbsent(s.ctx, p)
	s.Require().NoError(err)
	s.Require().True(ok)
	return p
}

func (s *DispatchRepositorySuite) posted(biz domain.Profile, created time.Time) domain.Delivery {
	acc, err := biz.Account()
	s.Require().NoError(err)
	d, err := domain.NewDelivery(domain.NewDeliveryParams{
		ID:                  uuid.New(),
		Business:            acc.(domain.BusinessAccount),
		DestinationAddress:  "Herzliya",
		DestinationLocation: geo.Point{Lat: 32.1663, Lng: 34.8436},
		Item:                "Flowers",
		Payment:             42.5,
		CreatedAt:           created,
	})
	s.Require().NoError(err)
	s.Require().NoError(s.deliveries.Insert(s.ctx, d))
	return d
}

func (s *DispatchRepositorySuite) service() *delivery.Service {
	return delivery.NewService(s.deliveries, s.accounts, nil, pricing.Default(), nil, delivery.Config{
		OperationTimeout: 10 * time.Second,
	}, logx.Nop())
}

func courierViewer(id string) visibility.Viewer {
	return visibility.Viewer{ID: id, Role: domain.RoleCourier}
}

func (s *DispatchRepositorySuite) TestAccount_OnboardingOnce() {
	p, err := s.accounts.EnsureExists(s.ctx, "u1", "u1@x")
	s.Require().NoError(err)
	s.Require().Equal(domain.RoleNone, p.Role)

	again, err := s.accounts.EnsureExists(s.ctx, "u1", "other@x")
	s.Require().NoError(err)
	s.Require().Equal("u1@x", again.Email)

	s.Require().NoError(s.accounts.SetRole(s.ctx, domain.Profile{ID: "u1", Role: domain.RoleCourier, Name: "Dana"}))
	err = s.accounts.SetRole(s.ctx, domain.Profile{ID: "u1", Role: domain.RoleBusiness, Name: "Dana"})
	s.Require().ErrorIs(err, apperr.ErrConflict)

	err = s.accounts.SetRole(s.ctx, domain.Profile{ID: "missing", Role: domain.RoleCourier, Name: "X"})
	s.Require().ErrorIs(err, apperr.ErrNotFound)

	got, err := s.accounts.Get(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Equal(domain.RoleCourier, got.Role)
	s.Require().Equal("Dana", got.Name)
}

func (s *DispatchRepositorySuite) TestAccount_FindByEmailIgnoresCase() {
	s.courier("c1")

	p, err := s.accounts.FindByEmail(s.ctx, "C1@X")
	s.Require().NoError(err)
	s.Require().Equal("c1", p.ID)

	_, err = s.accounts.FindByEmail(s.ctx, "nobody@x")
	s.Require().ErrorIs(err, apperr.ErrNotFound)
}

func (s *DispatchRepositorySuite) TestInitAdmin_AgainstPostgres() {
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("a%d", i)
		_, err := s.accounts.InsertIfAbsent(s.ctx, domain.Profile{ID: id, Email: id + "@x", Role: domain.RoleAdmin, Name: id})
		s.Require().NoError(err)
	}

	out, err := maintenance.EnsureSingleAdmin(s.ctx, s.accounts, maintenance.AdminSpec{Email: "boss@x", Name: "Boss"}, nil)
	s.Require().NoError(err)
	s.Require().Len(out.Demoted, 2)

	admins, err := s.accounts.ListByRole(s.ctx, domain.RoleAdmin, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(admins, 1)
	s.Require().Equal(out.AdminID, admins[0].ID)
	s.Require().Equal("Boss", admins[0].Name)

	again, err := maintenance.EnsureSingleAdmin(s.ctx, s.accounts, maintenance.AdminSpec{Email: "boss@x", Name: "Boss"}, nil)
	s.Require().NoError(err)
	s.Require().Empty(again.Demoted)
	s.Require().Equal(out.AdminID, again.AdminID)
}

func (s *DispatchRepositorySuite) TestDelivery_InsertGetAndSkipExisting() {
	biz := s.business("b1")
	d := s.posted(biz, time.Now().UTC().Truncate(time.Millisecond))

	got, err := s.deliveries.Get(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.StatusPosted, got.Status)
	s.Require().Equal(biz.Name, got.BusinessName)
	s.Require().InDelta(42.5, got.Payment, 0.001)
	s.Require().Nil(got.AssignedTo)

	ok, err := s.deliveries.InsertIfAbsent(s.ctx, d)
	s.Require().NoError(err)
	s.Require().False(ok)

	s.Require().ErrorIs(s.deliveries.Insert(s.ctx, d), apperr.ErrConflict)

	_, err = s.deliveries.Get(s.ctx, uuid.New())
	s.Require().ErrorIs(err, apperr.ErrNotFound)
}

func (s *DispatchRepositorySuite) TestDelivery_ListScopes() {
	b1, b2 := s.business("b1"), s.business("b2")
	s.courier("c1")
	now := time.Now().UTC()
	older := s.posted(b1, now.Add(-time.Hour))
	newer := s.posted(b1, now)
	s.posted(b2, now)

	own, err := s.deliveries.List(s.ctx, delivery.Filter{BusinessID: "b1"})
	s.Require().NoError(err)
	s.Require().Len(own, 2)
	s.Require().Equal(newer.ID, own[0].ID)
	s.Require().Equal(older.ID, own[1].ID)

	box := geo.BoundingBox(telAviv, 5)
	nearby, err := s.deliveries.List(s.ctx, delivery.Filter{CourierID: "c1", CandidateBox: &box})
	s.Require().NoError(err)
	s.Require().Len(nearby, 3)

	far := geo.BoundingBox(geo.Point{Lat: 29.5577, Lng: 34.9519}, 5)
	none, err := s.deliveries.List(s.ctx, delivery.Filter{CourierID: "c1", CandidateBox: &far})
	s.Require().NoError(err)
	s.Require().Empty(none)
}

func (s *DispatchRepositorySuite) TestAccept_ExactlyOneWinner() {
	biz := s.business("b1")
	d := s.posted(biz, time.Now().UTC())

	const couriers = 8
	for i := 0; i < couriers; i++ {
		s.courier(fmt.Sprintf("c%d", i))
	}
	svc := s.service()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		lost    int
	)
	start := make(chan struct{})
	for i := 0; i < couriers; i++ {
		id := fmt.Sprintf("c%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Accept(s.ctx, courierViewer(id), d.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, id)
			case errors.Is(err, apperr.ErrRaceLost):
				lost++
			default:
				s.Failf("unexpected accept error", "%v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	s.Require().Len(winners, 1)
	s.Require().Equal(couriers-1, lost)

	got, err := s.deliveries.Get(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.StatusAccepted, got.Status)
	s.Require().Equal(winners[0], *got.AssignedTo)
}

func (s *DispatchRepositorySuite) TestAdvance_DeliveredCreditsCourier() {
	biz := s.business("b1")
	s.courier("c1")
	s.courier("c2")
	d := s.posted(biz, time.Now().UTC())
	svc := s.service()

	_, err := svc.Accept(s.ctx, courierViewer("c1"), d.ID)
	s.Require().NoError(err)

	_, err = svc.Advance(s.ctx, courierViewer("c2"), d.ID, domain.StatusPickedUp)
	s.Require().ErrorIs(err, apperr.ErrForbidden)

	_, err = svc.Advance(s.ctx, courierViewer("c1"), d.ID, domain.StatusPickedUp)
	s.Require().NoError(err)
	done, err := svc.Advance(s.ctx, courierViewer("c1"), d.ID, domain.StatusDelivered)
	s.Require().NoError(err)
	s.Require().Equal("c1", *done.DeliveredBy)

	c1, err := s.accounts.Get(s.ctx, "c1")
	s.Require().NoError(err)
	s.Require().InDelta(42.5, c1.Balance, 0.001)

	active, err := s.deliveries.HasActiveBetween(s.ctx, "b1", "c1")
	s.Require().NoError(err)
	s.Require().False(active)

	board, err := s.reports.Leaderboard(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Equal("c1", board[0].ID)

	counts, err := s.reports.CountByStatus(s.ctx, "b1")
	s.Require().NoError(err)
	s.Require().EqualValues(1, counts[domain.StatusDelivered])
	s.Require().EqualValues(0, counts[domain.StatusPosted])
}

func (s *DispatchRepositorySuite) TestSaveTransition_StaleState() {
	biz := s.business("b1")
	s.courier("c1")
	d := s.posted(biz, time.Now().UTC())

	err := s.deliveries.WithTx(s.ctx, func(tx delivery.TxRepository) error {
		cur, err := tx.GetForUpdate(s.ctx, d.ID)
		if err != nil {
			return err
		}
		next, err := cur.Accept("c1", time.Now().UTC())
		if err != nil {
			return err
		}
		return tx.SaveTransition(s.ctx, domain.StatusAccepted, next)
	})
	s.Require().ErrorIs(err, apperr.ErrStaleState)

	got, err := s.deliveries.Get(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.StatusPosted, got.Status)
}

func (s *DispatchRepositorySuite) TestLocationHistory_RecentAndPrune() {
	now := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.history.Append(s.ctx, domain.LocationPing{
			CourierID:  "c1",
			Point:      geo.Point{Lat: 32 + float64(i)*0.01, Lng: 34.8},
			RecordedAt: now.Add(-time.Duration(i) * time.Hour),
		}))
	}

	recent, err := s.history.Recent(s.ctx, "c1", 2)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Require().True(recent[0].RecordedAt.After(recent[1].RecordedAt))

	n, err := s.history.PruneBefore(s.ctx, now.Add(-150*time.Minute))
	s.Require().NoError(err)
	s.Require().EqualValues(2, n)

	left, err := s.history.Recent(s.ctx, "c1", 10)
	s.Require().NoError(err)
	s.Require().Len(left, 3)
}

func (s *DispatchRepositorySuite) TestSeed_InsertOnly() {
	opt := maintenance.DefaultFixtureOptions(time.Now())
	opt.Businesses, opt.Couriers, opt.DeliveriesPerBusiness = 3, 4, 5
	fx := maintenance.BuildFixtures(opt)

	res, err := maintenance.Seed(s.ctx, s.accounts, s.deliveries, fx, nil)
	s.Require().NoError(err)
	s.Require().Equal(7, res.Accounts)
	s.Require().Equal(15, res.Deliveries)

	res, err = maintenance.Seed(s.ctx, s.accounts, s.deliveries, fx, nil)
	s.Require().NoError(err)
	s.Require().Zero(res.Accounts + res.Deliveries)
}

func TestDispatchRepositorySuite(t *testing.T) {
	suite.Run(t, new(DispatchRepositorySuite))
}
