// Package physics defines the contract between the T-maze episode logic and
// a rigid-body simulator that owns bodies, contacts and camera rendering.
package physics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// SubStep is the simulated duration of one StepSub call, in seconds.
const SubStep = 1.0 / 30.0

var ErrUnsupportedMode = errors.New("unsupported render mode")

// Mode selects headless or interactive simulation.
type Mode string

const (
	ModeDirect Mode = "direct"
	ModeGUI    Mode = "gui"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.TrimSpace(strings.ToLower(s))); m {
	case "", ModeDirect:
		return ModeDirect, nil
	case ModeGUI:
		return ModeGUI, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMode, s)
	}
}

// BodyID identifies a static body inside the current world.
type BodyID int

// ActorID identifies a spawned vehicle inside the current world.
type ActorID int

// Pose is a world-frame position and orientation.
type Pose struct {
	Position    r3.Vec
	Orientation r3.Rotation
}

// YawRotation is a rotation of yaw radians about the world z axis.
func YawRotation(yaw float64) r3.Rotation {
	return r3.NewRotation(yaw, r3.Vec{Z: 1})
}

// Compose returns the rotation that applies b first and then a.
func Compose(a, b r3.Rotation) r3.Rotation {
	return r3.Rotation(quat.Mul(quat.Number(a), quat.Number(b)))
}

// Euler returns roll, pitch and yaw (extrinsic x, y, z) of the orientation.
func (p Pose) Euler() (roll, pitch, yaw float64) {
	w, x, y, z := p.Orientation.Real, p.Orientation.Imag, p.Orientation.Jmag, p.Orientation.Kmag
	roll = math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))
	sinp := 2 * (w*y - z*x)
	switch {
	case sinp >= 1:
		pitch = math.Pi / 2
	case sinp <= -1:
		pitch = -math.Pi / 2
	default:
		pitch = math.Asin(sinp)
	}
	yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	return roll, pitch, yaw
}

// StaticBody is an immovable box loaded into the world.
type StaticBody struct {
	Name string
	// HalfExtents is the visual box; CollisionHalfExtents is what contacts use.
	HalfExtents          r3.Vec
	CollisionHalfExtents r3.Vec
	Center               r3.Vec
	Orientation          r3.Rotation
	Color                [4]float64
	Mass                 float64
	Friction             float64
}

// Contact is one touching point between an actor and a static body.
type Contact struct {
	Body     BodyID
	Position r3.Vec
	// Normal points from the actor into the body.
	Normal r3.Vec
	// Distance is the signed separation, negative when the shapes overlap.
	Distance float64
}

// ActorParams configures the spawned vehicle.
type ActorParams struct {
	// MaxSpeed is the forward speed reached at full throttle.
	MaxSpeed       float64
	GroundFriction float64
}

// Capture is one rendered image. RGBA holds Width*Height*4 bytes row-major;
// Depth holds the normalized depth buffer in [0,1] per pixel.
type Capture struct {
	Width  int
	Height int
	RGBA   []uint8
	Depth  []float32
}

func (c Capture) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid capture size %dx%d", c.Width, c.Height)
	}
	if len(c.RGBA) != c.Width*c.Height*4 {
		return fmt.Errorf("capture rgba length %d, want %d", len(c.RGBA), c.Width*c.Height*4)
	}
	if len(c.Depth) != c.Width*c.Height {
		return fmt.Errorf("capture depth length %d, want %d", len(c.Depth), c.Width*c.Height)
	}
	return nil
}

// Engine is the simulator surface the episode logic depends on. A simulator
// holds at most one world; CreateWorld discards the previous one.
type Engine interface {
	CreateWorld(ctx context.Context, gravity r3.Vec) error
	LoadStaticBody(ctx context.Context, body StaticBody) (BodyID, error)
	SpawnActor(ctx context.Context, pose Pose, params ActorParams) (ActorID, error)
	StepSub(ctx context.Context) error
	QueryContacts(ctx context.Context, actor ActorID, body BodyID) ([]Contact, error)
	QueryPose(ctx context.Context, actor ActorID) (Pose, error)
	RenderView(ctx context.Context, view, proj Mat4, width, height int) (Capture, error)
}

// Actuator applies a normalized [throttle, steering] command to a vehicle.
type Actuator interface {
	ApplyAction(ctx context.Context, actor ActorID, action [2]float64) error
}

type Simulator interface {
	Engine
	Actuator
	Close() error
}
