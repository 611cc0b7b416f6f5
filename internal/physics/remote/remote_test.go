package remote

import (
	"context"
	"math"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"tmaze/internal/physics"
	"tmaze/internal/physics/planar"
)

func startServer(t *testing.T) string {
	t.Helper()
	srv := NewServer(func() (physics.Simulator, error) {
		return planar.New(physics.ModeDirect)
	}, nil)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestClientDrivesRemoteSimulator(t *testing.T) {
	ctx := context.Background()
	client, err := Dial(ctx, startServer(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.CreateWorld(ctx, r3.Vec{Z: -9.8}))
	wall, err := client.LoadStaticBody(ctx, physics.StaticBody{
		Name:                 "front",
		HalfExtents:          r3.Vec{X: 0.5, Y: 3, Z: 1},
		CollisionHalfExtents: r3.Vec{X: 0.5, Y: 3, Z: 1},
		Center:               r3.Vec{X: 2, Z: 1},
		Orientation:          r3.Rotation{Real: 1},
		Color:                [4]float64{0, 1, 0, 1},
	})
	require.NoError(t, err)
	require.Equal(t, physics.BodyID(0), wall)

	actor, err := client.SpawnActor(ctx, physics.Pose{
		Position:    r3.Vec{Z: 0.5},
		Orientation: physics.YawRotation(0),
	}, physics.ActorParams{MaxSpeed: 5, GroundFriction: 10})
	require.NoError(t, err)

	var contacts []physics.Contact
	for i := 0; i < 60 && len(contacts) == 0; i++ {
		require.NoError(t, client.ApplyAction(ctx, actor, [2]float64{1, 0}))
		require.NoError(t, client.StepSub(ctx))
		contacts, err = client.QueryContacts(ctx, actor, wall)
		require.NoError(t, err)
	}
	require.NotEmpty(t, contacts, "expected vehicle to reach the wall")
	require.Equal(t, wall, contacts[0].Body)
	require.Greater(t, contacts[0].Normal.X, 0.9)

	pose, err := client.QueryPose(ctx, actor)
	require.NoError(t, err)
	require.Greater(t, pose.Position.X, 0.5)
	require.InDelta(t, 0.5, pose.Position.Z, 1e-12)

	view := physics.LookAt(r3.Vec{Z: 1}, r3.Vec{X: 1, Z: 1}, r3.Vec{Z: 1})
	capture, err := client.RenderView(ctx, view, physics.PerspectiveFOV(90, 1, 0.05, 40), 8, 8)
	require.NoError(t, err)
	require.NoError(t, capture.Validate())
	require.Less(t, capture.Depth[4*8+4], float32(1))
}

func TestClientSurfacesRemoteErrors(t *testing.T) {
	ctx := context.Background()
	client, err := Dial(ctx, startServer(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	err = client.StepSub(ctx)
	require.ErrorIs(t, err, ErrRemote)
	require.Contains(t, err.Error(), "world has not been created")
}

func TestClientRejectsCancelledContext(t *testing.T) {
	client, err := Dial(context.Background(), startServer(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, client.StepSub(ctx), context.Canceled)
}

func TestServerRejectsGUIFactory(t *testing.T) {
	srv := NewServer(func() (physics.Simulator, error) {
		return planar.New(physics.ModeGUI)
	}, nil)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	_, err := Dial(context.Background(), "ws"+strings.TrimPrefix(ts.URL, "http"))
	require.Error(t, err)
}

func TestPoseSurvivesWireEncoding(t *testing.T) {
	ctx := context.Background()
	client, err := Dial(ctx, startServer(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.CreateWorld(ctx, r3.Vec{}))
	actor, err := client.SpawnActor(ctx, physics.Pose{
		Position:    r3.Vec{X: 1, Y: -2, Z: 0.5},
		Orientation: physics.YawRotation(math.Pi / 3),
	}, physics.ActorParams{MaxSpeed: 5, GroundFriction: 10})
	require.NoError(t, err)

	pose, err := client.QueryPose(ctx, actor)
	require.NoError(t, err)
	_, _, yaw := pose.Euler()
	require.InDelta(t, math.Pi/3, yaw, 1e-9)
	require.InDelta(t, 1, pose.Position.X, 1e-9)
	require.InDelta(t, -2, pose.Position.Y, 1e-9)
}
