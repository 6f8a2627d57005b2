package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"geeo.io/QuadServer/quad"
)

// redisPointsKey is the list holding one JSON point per element, in insertion order
const redisPointsKey = "quadserver:points"

type redisPersister struct {
	rdb *redis.Client
	key string
}

func newRedisPersister(addr string) (Persister, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("Connected to Redis at ", addr)
	return &redisPersister{rdb: rdb, key: redisPointsKey}, nil
}

func (p *redisPersister) readPointsInto(idx *PointIndex) error {
	log.Info("Loading points from redis")
	before := time.Now()

	values, err := p.rdb.LRange(context.Background(), p.key, 0, -1).Result()
	if err != nil {
		return err
	}
	points := make([]quad.Point[float64], 0, len(values))
	for _, v := range values {
		var point quad.Point[float64]
		if err := json.Unmarshal([]byte(v), &point); err != nil {
			return err
		}
		points = append(points, point)
	}
	idx._loadPoints(points)

	log.Infof("Redis: loaded %d points in %fs", len(points), time.Since(before).Seconds())
	return nil
}

func (p *redisPersister) persistPoints(points []quad.Point[float64]) error {
	values := make([]interface{}, 0, len(points))
	for _, point := range points {
		b, err := json.Marshal(point)
		if err != nil {
			return err
		}
		values = append(values, string(b))
	}
	return p.rdb.RPush(context.Background(), p.key, values...).Err()
}

func (p *redisPersister) close() {
	p.rdb.Close()
}

// BackupHandleFunc isn't available on redis, use the server's own persistence
func (p *redisPersister) BackupHandleFunc(w http.ResponseWriter, req *http.Request) {
	if !checkBearer(req) {
		w.WriteHeader(http.StatusUnauthorized)
		log.Warn("Unauthorized attempt to backup DB")
		return
	}
	http.Error(w, ErrNotImplemented.Error(), http.StatusNotImplemented)
}

func (p *redisPersister) JSONDumpHandleFunc(w http.ResponseWriter, req *http.Request) {
	if !checkBearer(req) {
		w.WriteHeader(http.StatusUnauthorized)
		log.Warn("Unauthorized attempt to dump DB")
		return
	}
	values, err := p.rdb.LRange(req.Context(), p.key, 0, -1).Result()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"points":[` + strings.Join(values, ",") + "]}"))
}
