package resource

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// IDGenerator issues the business identifier stamped into a new resource's
// <type>Id field.
type IDGenerator interface {
	NewID(resourceType string) string
}

// WallClock issues millisecond-timestamp identifiers. This matches the
// legacy numbering scheme existing integrations parse, so it stays the
// default.
type WallClock struct {
	now func() time.Time
}

// NewWallClock creates the default generator.
func NewWallClock() *WallClock {
	return &WallClock{now: time.Now}
}

// WithClock overrides the generator's clock, for tests.
func (g *WallClock) WithClock(now func() time.Time) *WallClock {
	g.now = now
	return g
}

// NewID implements IDGenerator.
func (g *WallClock) NewID(resourceType string) string {
	return strconv.FormatInt(g.now().UnixMilli(), 10)
}

// UUID issues random UUID identifiers, for deployments that do not depend
// on the timestamp scheme.
type UUID struct{}

// NewID implements IDGenerator.
func (UUID) NewID(resourceType string) string {
	return uuid.NewString()
}
