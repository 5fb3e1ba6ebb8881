// Package quota enforces the global daily upstream fetch budget.
//
// One counter per calendar day in the service time zone; the date is
// part of the key, so the limit resets at midnight without an explicit
// reset. The check-and-increment is a single Lua script: once the
// limit is reached the counter stops moving.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const counterTTL = 48 * time.Hour

var incrScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
if cur >= tonumber(ARGV[1]) then
	return {cur, 0}
end
cur = redis.call("INCR", KEYS[1])
if cur == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return {cur, 1}
`)

type Counter struct {
	rdb    *redis.Client
	prefix string
	limit  int64
	loc    *time.Location
	now    func() time.Time
}

func New(rdb *redis.Client, prefix string, limit int64, loc *time.Location) *Counter {
	if prefix == "" {
		prefix = "besttime:quota"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Counter{rdb: rdb, prefix: prefix, limit: limit, loc: loc, now: time.Now}
}

// SetClock overrides the clock, for tests.
func (c *Counter) SetClock(now func() time.Time) { c.now = now }

func (c *Counter) key() string {
	return fmt.Sprintf("%s:%s", c.prefix, c.now().In(c.loc).Format("2006-01-02"))
}

// IncrementAndCheck atomically bumps today's counter unless the limit
// is already reached. allowed=false means the caller must not fetch.
func (c *Counter) IncrementAndCheck(ctx context.Context) (int64, bool, error) {
	res, err := incrScript.Run(ctx, c.rdb, []string{c.key()},
		c.limit, int64(counterTTL.Seconds())).Slice()
	if err != nil {
		return 0, false, fmt.Errorf("quota incr: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("quota incr: unexpected reply %v", res)
	}
	count, _ := res[0].(int64)
	allowed, _ := res[1].(int64)
	return count, allowed == 1, nil
}
