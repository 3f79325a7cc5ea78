// internal/game/controls_test.go
package game

import (
	"context"
	"fmt"
	"testing"

	"github.com/jason-s-yu/neocascade/internal/models"
	"github.com/jason-s-yu/neocascade/internal/monitoring"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }
func intp(v int) *int        { return &v }

// setupCrew creates a room with a full crew p0..p5 holding RoleTable in order.
func setupCrew(t *testing.T) (*Controls, *Registry, *mockRecorder, string) {
	t.Helper()
	r, s, rec := setupRegistry(t)
	ctx := context.Background()
	code, err := r.CreateRoom(ctx, "Nautilus", "p0", profile("Nemo"))
	require.NoError(t, err)
	for i := 1; i < models.RoomCapacity; i++ {
		_, err := r.JoinRoom(ctx, code, fmt.Sprintf("p%d", i), profile(fmt.Sprintf("Crew%d", i)))
		require.NoError(t, err)
	}

	c := NewControls(s, newTestLogger())
	c.Recorder = rec
	return c, r, rec, code
}

func vessel(t *testing.T, r *Registry, code string) (models.Vessel, int64) {
	t.Helper()
	room, err := r.GetRoom(context.Background(), code)
	require.NoError(t, err)
	return room.Submarine, room.Version
}

func TestCaptainControls(t *testing.T) {
	c, r, _, code := setupCrew(t)
	ctx := context.Background()

	out, err := c.Apply(ctx, code, "p0", Intent{Action: models.ActionSetDepth, Value: f64(250)})
	require.NoError(t, err)
	assert.Equal(t, "Depth set to 250 m", out.Notice)
	v, version := vessel(t, r, code)
	assert.Equal(t, -250.0, v.Depth)
	assert.Equal(t, version, out.Version)

	_, err = c.Apply(ctx, code, "p0", Intent{Action: models.ActionSetSpeed, Value: f64(18)})
	require.NoError(t, err)
	_, err = c.Apply(ctx, code, "p0", Intent{Action: models.ActionSetMission, Mission: models.MissionStealth})
	require.NoError(t, err)
	v, _ = vessel(t, r, code)
	assert.Equal(t, 18.0, v.Speed)
	assert.Equal(t, models.MissionStealth, v.Mission)

	_, err = c.Apply(ctx, code, "p0", Intent{Action: models.ActionSilentRunning})
	require.NoError(t, err)
	v, _ = vessel(t, r, code)
	assert.Equal(t, SilentRunningSpeed, v.Speed)

	_, err = c.Apply(ctx, code, "p0", Intent{Action: models.ActionEmergencySurface})
	require.NoError(t, err)
	v, _ = vessel(t, r, code)
	assert.Equal(t, 0.0, v.Depth)
	assert.Equal(t, 0.0, v.Speed)

	for _, in := range []Intent{
		{Action: models.ActionSetDepth, Value: f64(501)},
		{Action: models.ActionSetDepth},
		{Action: models.ActionSetSpeed, Value: f64(-1)},
		{Action: models.ActionSetSpeed, Value: f64(31)},
		{Action: models.ActionSetMission, Mission: "Party"},
	} {
		_, err := c.Apply(ctx, code, "p0", in)
		assert.ErrorIs(t, err, ErrInvalidInput, "%+v", in)
	}
}

func TestNavigatorControls(t *testing.T) {
	c, r, _, code := setupCrew(t)
	ctx := context.Background()

	_, err := c.Apply(ctx, code, "p1", Intent{Action: models.ActionSetCourse, X: f64(12), Y: f64(-7.5)})
	require.NoError(t, err)
	v, _ := vessel(t, r, code)
	assert.Equal(t, models.Point{X: 12, Y: -7.5}, v.Target)

	_, err = c.Apply(ctx, code, "p1", Intent{Action: models.ActionSetCourse, X: f64(21), Y: f64(0)})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = c.Apply(ctx, code, "p1", Intent{Action: models.ActionSetCourse, X: f64(1)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, version := vessel(t, r, code)
	out, err := c.Apply(ctx, code, "p1", Intent{Action: models.ActionScanArea})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Notice)
	_, after := vessel(t, r, code)
	assert.Equal(t, version, after, "notice-only actions do not write")
}

func TestEngineerControls(t *testing.T) {
	c, r, _, code := setupCrew(t)
	ctx := context.Background()

	_, err := c.Apply(ctx, code, "p2", Intent{Action: models.ActionAllocatePower, Engines: intp(40), Sonar: intp(40), LifeSupport: intp(20)})
	require.NoError(t, err)
	v, _ := vessel(t, r, code)
	assert.Equal(t, models.PowerAllocation{Engines: 40, Sonar: 40, LifeSupport: 20}, v.PowerAllocation)

	_, err = c.Apply(ctx, code, "p2", Intent{Action: models.ActionAllocatePower, Engines: intp(40), Sonar: intp(40), LifeSupport: intp(30)})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = c.Apply(ctx, code, "p2", Intent{Action: models.ActionAllocatePower, Engines: intp(120), Sonar: intp(-10), LifeSupport: intp(-10)})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = c.Apply(ctx, code, "p2", Intent{Action: models.ActionAllocatePower, Engines: intp(100)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	v, _ = vessel(t, r, code)
	assert.Equal(t, 40, v.PowerAllocation.Engines, "rejected allocations leave the vessel alone")

	_, err = c.Apply(ctx, code, "p2", Intent{Action: models.ActionRepair, System: "sonar"})
	require.NoError(t, err)
	v, _ = vessel(t, r, code)
	assert.Equal(t, 100.0, v.Systems.Sonar)
	assert.Equal(t, 90.0, v.Power)

	_, err = c.Apply(ctx, code, "p2", Intent{Action: models.ActionRepair, System: "warp"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorContains(t, err, "lifeSupport")
}

func TestFlavorControls(t *testing.T) {
	c, _, _, code := setupCrew(t)
	ctx := context.Background()

	cases := []struct {
		player string
		in     Intent
		notice string
	}{
		{"p3", Intent{Action: models.ActionActiveSonar}, "Active sonar ping sent"},
		{"p4", Intent{Action: models.ActionFireTorpedo, Contact: "contact1"}, "Torpedo away at contact1"},
		{"p4", Intent{Action: models.ActionEvade}, "Evasive maneuver"},
		{"p5", Intent{Action: models.ActionTuneFrequency, Frequency: 243.0}, "Tuned to 243.0 MHz"},
		{"p5", Intent{Action: models.ActionBroadcast, Text: " Mayday "}, "Broadcast: Mayday"},
	}
	for _, tc := range cases {
		out, err := c.Apply(ctx, code, tc.player, tc.in)
		require.NoError(t, err, tc.in.Action)
		assert.Equal(t, tc.notice, out.Notice)
	}

	_, err := c.Apply(ctx, code, "p5", Intent{Action: models.ActionTuneFrequency, Frequency: 100})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestControlsEnforceCapabilities(t *testing.T) {
	c, r, _, code := setupCrew(t)
	ctx := context.Background()

	_, err := c.Apply(ctx, code, "p1", Intent{Action: models.ActionSetDepth, Value: f64(100)})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = c.Apply(ctx, code, "p0", Intent{Action: models.ActionRepair, System: "sonar"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = c.Apply(ctx, code, "stranger", Intent{Action: models.ActionSetDepth, Value: f64(100)})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = c.Apply(ctx, code, "p0", Intent{Action: "self_destruct"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	v, _ := vessel(t, r, code)
	assert.Equal(t, 0.0, v.Depth)

	// a seventh crew member cannot exist in a full room, so check the policy directly
	assert.False(t, models.RoleFor(6).Can(models.ActionSetDepth))
}

func TestControlsRejectStaleVersion(t *testing.T) {
	c, r, rec, code := setupCrew(t)
	ctx := context.Background()

	_, version := vessel(t, r, code)
	out, err := c.Apply(ctx, code, "p0", Intent{Action: models.ActionSetSpeed, Value: f64(10), Version: i64(version)})
	require.NoError(t, err)
	assert.Equal(t, version+1, out.Version)

	_, err = c.Apply(ctx, code, "p0", Intent{Action: models.ActionSetSpeed, Value: f64(20), Version: i64(version)})
	assert.ErrorIs(t, err, ErrStaleVersion)

	v, _ := vessel(t, r, code)
	assert.Equal(t, 10.0, v.Speed)
	assert.Contains(t, rec.kinds(), models.EventControl)
}

func TestControlsOnFinishedRoom(t *testing.T) {
	c, r, _, code := setupCrew(t)
	ctx := context.Background()
	require.NoError(t, r.FinishRoom(ctx, code, "p0"))

	_, err := c.Apply(ctx, code, "p0", Intent{Action: models.ActionSetSpeed, Value: f64(10)})
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestUnknownActionsShareOneMetricSeries(t *testing.T) {
	c, _, _, code := setupCrew(t)
	c.Metrics = monitoring.New("test")
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		_, err := c.Apply(ctx, code, "p0", Intent{Action: models.Action(fmt.Sprintf("junk-%d", i))})
		require.ErrorIs(t, err, ErrInvalidInput)
	}
	n, err := testutil.GatherAndCount(c.Metrics.Registry(), "test_intents_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = c.Apply(ctx, code, "p0", Intent{Action: models.ActionSetSpeed, Value: f64(12)})
	require.NoError(t, err)
	n, err = testutil.GatherAndCount(c.Metrics.Registry(), "test_intents_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
