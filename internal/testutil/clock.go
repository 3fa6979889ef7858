package testutil

import (
	"fmt"
	"sync"
	"time"

	"carlog/internal/carlog"
)

// FixedTime is the instant FixedClock starts at. It is in local time and
// has no sub-second part, so an archive created at it is named
// backup_2024_01_15_103000.zip and parses back to the same instant.
var FixedTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.Local)

// StubClock is a carlog.Clock that only moves when told to. Backups taken
// without Advance in between share an archive timestamp.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ carlog.Clock = (*StubClock)(nil)

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to FixedTime.
func FixedClock() *StubClock {
	return NewStubClock(FixedTime)
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Retention tests advance by at
// least a second so each archive gets its own timestamp.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StubIDGenerator names restored image files img-1, img-2 and so on, in
// the order the restore places them.
type StubIDGenerator struct {
	mu   sync.Mutex
	next int
}

var _ carlog.IDGenerator = (*StubIDGenerator)(nil)

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("img-%d", g.next)
}
