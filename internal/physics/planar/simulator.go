// Package planar is a top-down rigid-body backend for the T-maze. Bodies live
// in a box2d world on the ground plane; heights are carried alongside for the
// ray-cast camera.
package planar

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ByteArena/box2d"
	"gonum.org/v1/gonum/spatial/r3"

	"tmaze/internal/physics"
)

const (
	staticBody  = 0
	dynamicBody = 2

	velocityIterations = 8
	positionIterations = 3

	// MaxYawRate is the turn rate at full steering, in rad/s.
	MaxYawRate = 3.0
)

// VehicleHalfSize is the collision footprint of the vehicle (length, width).
var VehicleHalfSize = [2]float64{0.35, 0.2}

var (
	ErrNoWorld       = errors.New("world has not been created")
	ErrUnknownBody   = errors.New("unknown body")
	ErrUnknownActor  = errors.New("unknown actor")
	ErrSimulatorShut = errors.New("simulator is closed")
)

type wallBody struct {
	static physics.StaticBody
	body   *box2d.B2Body
}

type actor struct {
	body    *box2d.B2Body
	height  float64
	params  physics.ActorParams
	command [2]float64
	speed   float64
}

// Simulator implements physics.Simulator on box2d.
type Simulator struct {
	world  *box2d.B2World
	walls  []wallBody
	actors []*actor
	closed bool
}

func New(mode physics.Mode) (*Simulator, error) {
	if mode != physics.ModeDirect {
		return nil, fmt.Errorf("%w: planar backend only supports %s, got %s", physics.ErrUnsupportedMode, physics.ModeDirect, mode)
	}
	return &Simulator{}, nil
}

// CreateWorld discards bodies from the previous world. Gravity along z has
// no effect on the planar world.
func (s *Simulator) CreateWorld(_ context.Context, gravity r3.Vec) error {
	if s.closed {
		return ErrSimulatorShut
	}
	world := box2d.MakeB2World(box2d.MakeB2Vec2(gravity.X, gravity.Y))
	s.world = &world
	s.walls = nil
	s.actors = nil
	return nil
}

func (s *Simulator) LoadStaticBody(_ context.Context, static physics.StaticBody) (physics.BodyID, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	_, _, yaw := physics.Pose{Orientation: static.Orientation}.Euler()

	def := box2d.MakeB2BodyDef()
	def.Type = staticBody
	def.Position = box2d.MakeB2Vec2(static.Center.X, static.Center.Y)
	def.Angle = yaw
	body := s.world.CreateBody(&def)

	shape := box2d.NewB2PolygonShape()
	shape.SetAsBox(static.CollisionHalfExtents.X, static.CollisionHalfExtents.Y)
	fix := box2d.MakeB2FixtureDef()
	fix.Shape = shape
	fix.Density = 0
	fix.Friction = static.Friction
	body.CreateFixtureFromDef(&fix)

	s.walls = append(s.walls, wallBody{static: static, body: body})
	return physics.BodyID(len(s.walls) - 1), nil
}

func (s *Simulator) SpawnActor(_ context.Context, pose physics.Pose, params physics.ActorParams) (physics.ActorID, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	_, _, yaw := pose.Euler()

	def := box2d.MakeB2BodyDef()
	def.Type = dynamicBody
	def.Position = box2d.MakeB2Vec2(pose.Position.X, pose.Position.Y)
	def.Angle = yaw
	def.AllowSleep = false
	body := s.world.CreateBody(&def)

	shape := box2d.NewB2PolygonShape()
	shape.SetAsBox(VehicleHalfSize[0], VehicleHalfSize[1])
	fix := box2d.MakeB2FixtureDef()
	fix.Shape = shape
	fix.Density = 1
	fix.Friction = 0
	fix.Restitution = 0
	body.CreateFixtureFromDef(&fix)

	s.actors = append(s.actors, &actor{
		body:   body,
		height: pose.Position.Z,
		params: params,
	})
	return physics.ActorID(len(s.actors) - 1), nil
}

// ApplyAction sets the throttle/steering command held until the next call.
func (s *Simulator) ApplyAction(_ context.Context, id physics.ActorID, action [2]float64) error {
	a, err := s.actor(id)
	if err != nil {
		return err
	}
	a.command = action
	return nil
}

// StepSub advances one sub-step. Vehicle speed follows the throttle target
// with a first-order lag set by ground friction.
func (s *Simulator) StepSub(_ context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	for _, a := range s.actors {
		response := math.Min(1, a.params.GroundFriction*physics.SubStep)
		target := a.command[0] * a.params.MaxSpeed
		a.speed += (target - a.speed) * response

		angle := a.body.GetAngle()
		a.body.SetLinearVelocity(box2d.MakeB2Vec2(a.speed*math.Cos(angle), a.speed*math.Sin(angle)))
		a.body.SetAngularVelocity(a.command[1] * MaxYawRate)
	}
	s.world.Step(physics.SubStep, velocityIterations, positionIterations)
	return nil
}

// QueryContacts lists the touching manifold points between the actor and a
// wall after the last sub-step, at the actor's height.
func (s *Simulator) QueryContacts(_ context.Context, id physics.ActorID, body physics.BodyID) ([]physics.Contact, error) {
	a, err := s.actor(id)
	if err != nil {
		return nil, err
	}
	if int(body) < 0 || int(body) >= len(s.walls) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBody, body)
	}
	wall := s.walls[body].body

	var out []physics.Contact
	for edge := a.body.GetContactList(); edge != nil; edge = edge.Next {
		if edge.Other != wall || !edge.Contact.IsTouching() {
			continue
		}
		wm := box2d.MakeB2WorldManifold()
		edge.Contact.GetWorldManifold(&wm)
		normal := r3.Vec{X: wm.Normal.X, Y: wm.Normal.Y}
		if edge.Contact.GetFixtureA().GetBody() != a.body {
			normal = r3.Scale(-1, normal)
		}
		for i := 0; i < edge.Contact.GetManifold().PointCount; i++ {
			out = append(out, physics.Contact{
				Body:     body,
				Position: r3.Vec{X: wm.Points[i].X, Y: wm.Points[i].Y, Z: a.height},
				Normal:   normal,
				Distance: wm.Separations[i],
			})
		}
	}
	return out, nil
}

func (s *Simulator) QueryPose(_ context.Context, id physics.ActorID) (physics.Pose, error) {
	a, err := s.actor(id)
	if err != nil {
		return physics.Pose{}, err
	}
	pos := a.body.GetPosition()
	return physics.Pose{
		Position:    r3.Vec{X: pos.X, Y: pos.Y, Z: a.height},
		Orientation: physics.YawRotation(a.body.GetAngle()),
	}, nil
}

func (s *Simulator) RenderView(_ context.Context, view, proj physics.Mat4, width, height int) (physics.Capture, error) {
	if err := s.ready(); err != nil {
		return physics.Capture{}, err
	}
	boxes := make([]physics.StaticBody, 0, len(s.walls))
	for _, w := range s.walls {
		boxes = append(boxes, w.static)
	}
	return Raycast(boxes, view, proj, width, height)
}

func (s *Simulator) Close() error {
	s.closed = true
	s.world = nil
	s.walls = nil
	s.actors = nil
	return nil
}

func (s *Simulator) ready() error {
	if s.closed {
		return ErrSimulatorShut
	}
	if s.world == nil {
		return ErrNoWorld
	}
	return nil
}

func (s *Simulator) actor(id physics.ActorID) (*actor, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if int(id) < 0 || int(id) >= len(s.actors) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownActor, id)
	}
	return s.actors[id], nil
}
