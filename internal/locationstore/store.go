// Package locationstore keeps the current-position slot of every courier in Redis.
package locationstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
)

const positionsKey = "couriers:positions"

func slotKey(courierID string) string { return "courier:" + courierID + ":location" }

func channel(courierID string) string { return "courier-location:" + courierID }

// Store is the Redis-backed current-position projection.
type Store struct {
	rdb    *redis.Client
	logger logx.Logger
}

// New creates a Store over an existing client.
func New(rdb *redis.Client, logger logx.Logger) *Store {
	return &Store{rdb: rdb, logger: logger}
}

// Connect opens a client and checks that Redis answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// Set overwrites the courier slot and pushes the new value to subscribers.
func (s *Store) Set(ctx context.Context, loc domain.CourierLocation) error {
	payload, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, slotKey(loc.CourierID), payload, 0)
		p.GeoAdd(ctx, positionsKey, &redis.GeoLocation{
			Name:      loc.CourierID,
			Longitude: loc.Point.Lng,
			Latitude:  loc.Point.Lat,
		})
		p.Publish(ctx, channel(loc.CourierID), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store location %s: %w", loc.CourierID, err)
	}
	return nil
}

// Get returns the slot of one courier.
func (s *Store) Get(ctx context.Context, courierID string) (domain.CourierLocation, error) {
	raw, err := s.rdb.Get(ctx, slotKey(courierID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.CourierLocation{}, fmt.Errorf("location of %s: %w", courierID, apperr.ErrNotFound)
		}
		return domain.CourierLocation{}, fmt.Errorf("load location %s: %w", courierID, err)
	}
	return decode(raw)
}

// All returns every known slot.
func (s *Store) All(ctx context.Context) ([]domain.CourierLocation, error) {
	ids, err := s.rdb.ZRange(ctx, positionsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list couriers: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = slotKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load locations: %w", err)
	}

	out := make([]domain.CourierLocation, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		loc, err := decode([]byte(str))
		if err != nil {
			s.logger.Warn("skip broken location slot", logx.String("courier_id", ids[i]), logx.Err(err))
			continue
		}
		out = append(out, loc)
	}
	return out, nil
}

// Nearby lists courier ids within radiusKm of (lat, lng), nearest first.
func (s *Store) Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]string, error) {
	ids, err := s.rdb.GeoSearch(ctx, positionsKey, &redis.GeoSearchQuery{
		Longitude:  lng,
		Latitude:   lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo search: %w", err)
	}
	return ids, nil
}

// Subscribe streams updates of one courier until ctx ends. The returned
// channel is closed when the subscription stops.
func (s *Store) Subscribe(ctx context.Context, courierID string) (<-chan domain.CourierLocation, error) {
	ps := s.rdb.Subscribe(ctx, channel(courierID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", courierID, err)
	}

	out := make(chan domain.CourierLocation, 8)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				loc, err := decode([]byte(msg.Payload))
				if err != nil {
					s.logger.Warn("drop malformed location message",
						logx.String("channel", msg.Channel),
						logx.Err(err),
					)
					continue
				}
				select {
				case out <- loc:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func decode(raw []byte) (domain.CourierLocation, error) {
	var loc domain.CourierLocation
	if err := json.Unmarshal(raw, &loc); err != nil {
		return domain.CourierLocation{}, fmt.Errorf("decode location: %w", err)
	}
	return loc, nil
}
