package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"tradelab/internal/model"
)

// ErrNoData is returned for stream entries without a "data" field.
var ErrNoData = errors.New("stream message has no data field")

// Source reads candles from one Redis stream. Every entry carries the
// candle JSON under the "data" field.
type Source struct {
	client *goredis.Client
	stream string
	lastID string

	// OnDecodeError is called for entries that are skipped (optional).
	OnDecodeError func(id string, err error)
}

// NewSource reads stream starting after startID. "$" follows only new
// entries, "0" replays the whole stream first.
func NewSource(client *goredis.Client, stream, startID string) *Source {
	if startID == "" {
		startID = "$"
	}
	return &Source{client: client, stream: stream, lastID: startID}
}

// LastID returns the ID of the last entry read.
func (s *Source) LastID() string { return s.lastID }

// Stream blocks on XREAD and sends decoded candles to out in stream order.
// Returns when ctx is cancelled.
func (s *Source) Stream(ctx context.Context, out chan<- model.Candle) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		results, err := s.client.XRead(ctx, &goredis.XReadArgs{
			Streams: []string{s.stream, s.lastID},
			Count:   100,
			Block:   2 * time.Second,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			slog.Warn("redis xread failed", "stream", s.stream, "error", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range results {
			for _, msg := range stream.Messages {
				// Advance past bad entries too so they are not re-read
				s.lastID = msg.ID

				c, err := DecodeCandle(msg)
				if err != nil {
					if s.OnDecodeError != nil {
						s.OnDecodeError(msg.ID, err)
					}
					slog.Warn("skipping stream entry", "stream", s.stream, "id", msg.ID, "error", err)
					continue
				}

				select {
				case out <- c:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// DecodeCandle extracts the candle from a stream entry.
func DecodeCandle(msg goredis.XMessage) (model.Candle, error) {
	var c model.Candle
	data, ok := msg.Values["data"].(string)
	if !ok {
		return c, ErrNoData
	}
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return c, fmt.Errorf("decode candle %s: %w", msg.ID, err)
	}
	return c, nil
}
