package broker_test

import (
	"testing"

	"github.com/newthinker/cta/internal/broker"
	"github.com/newthinker/cta/internal/core"
	"github.com/stretchr/testify/assert"
)

func fill(dir core.Direction, price float64, volume int64) core.Trade {
	return core.Trade{Symbol: "rb2410", Direction: dir, Price: price, Volume: volume}
}

func TestPositionTracker_Unknown(t *testing.T) {
	pt := broker.NewPositionTracker(1)

	pos := pt.GetPosition("UNKNOWN")
	assert.Equal(t, "UNKNOWN", pos.Symbol)
	assert.Equal(t, int64(0), pos.Quantity)
	assert.Empty(t, pt.GetAllPositions())
}

func TestPositionTracker_AveragesIntoLong(t *testing.T) {
	pt := broker.NewPositionTracker(1)

	pt.UpdateOnTrade(fill(core.DirectionLong, 100, 1))
	pt.UpdateOnTrade(fill(core.DirectionLong, 110, 3))

	pos := pt.GetPosition("rb2410")
	assert.True(t, pos.IsLong())
	assert.Equal(t, int64(4), pos.Quantity)
	assert.InDelta(t, 107.5, pos.AverageCost, 1e-9)
}

func TestPositionTracker_CloseLongRealizes(t *testing.T) {
	pt := broker.NewPositionTracker(10)

	pt.UpdateOnTrade(fill(core.DirectionLong, 100, 2))
	realized := pt.UpdateOnTrade(fill(core.DirectionShort, 105, 2))

	assert.InDelta(t, 100.0, realized, 1e-9) // 5 * 2 * 10
	pos := pt.GetPosition("rb2410")
	assert.Equal(t, int64(0), pos.Quantity)
	assert.Equal(t, 0.0, pos.AverageCost)
	assert.InDelta(t, 100.0, pt.TotalRealizedPL(), 1e-9)
	assert.Empty(t, pt.GetAllPositions())
}

func TestPositionTracker_ShortProfitsOnDecline(t *testing.T) {
	pt := broker.NewPositionTracker(1)

	pt.UpdateOnTrade(fill(core.DirectionShort, 100, 1))
	assert.True(t, pt.GetPosition("rb2410").IsShort())

	realized := pt.UpdateOnTrade(fill(core.DirectionLong, 90, 1))
	assert.InDelta(t, 10.0, realized, 1e-9)
}

func TestPositionTracker_FlipThroughFlat(t *testing.T) {
	pt := broker.NewPositionTracker(1)

	pt.UpdateOnTrade(fill(core.DirectionShort, 100, 1))
	realized := pt.UpdateOnTrade(fill(core.DirectionLong, 95, 3))

	assert.InDelta(t, 5.0, realized, 1e-9)
	pos := pt.GetPosition("rb2410")
	assert.Equal(t, int64(2), pos.Quantity)
	assert.Equal(t, 95.0, pos.AverageCost)
}

func TestPositionTracker_PartialCloseKeepsCost(t *testing.T) {
	pt := broker.NewPositionTracker(1)

	pt.UpdateOnTrade(fill(core.DirectionLong, 100, 3))
	pt.UpdateOnTrade(fill(core.DirectionShort, 120, 1))

	pos := pt.GetPosition("rb2410")
	assert.Equal(t, int64(2), pos.Quantity)
	assert.Equal(t, 100.0, pos.AverageCost)
}

func TestPositionTracker_UnrealizedAfterMark(t *testing.T) {
	pt := broker.NewPositionTracker(2)

	pt.UpdateOnTrade(fill(core.DirectionShort, 100, 3))
	pt.Mark("rb2410", 98)

	assert.InDelta(t, 12.0, pt.TotalUnrealizedPL(), 1e-9) // (98-100) * -3 * 2
}
