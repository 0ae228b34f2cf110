package permits

import (
	"context"

	"golang.org/x/sync/singleflight"
)

var statsGroup singleflight.Group

func singleflightStats(ctx context.Context, key string, fn func(context.Context) (map[string]int, error)) (map[string]int, error, bool) {
	resultChan := statsGroup.DoChan(key, func() (interface{}, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		stats, _ := res.Val.(map[string]int)
		return stats, res.Err, res.Shared
	}
}
