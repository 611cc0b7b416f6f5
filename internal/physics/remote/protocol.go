// Package remote bridges physics.Simulator over a websocket so the episode
// logic can drive a simulator hosted in another process.
package remote

import (
	"encoding/json"

	"gonum.org/v1/gonum/spatial/r3"

	"tmaze/internal/physics"
)

const (
	opCreateWorld    = "create_world"
	opLoadStaticBody = "load_static_body"
	opSpawnActor     = "spawn_actor"
	opStepSub        = "step_sub"
	opQueryContacts  = "query_contacts"
	opQueryPose      = "query_pose"
	opRenderView     = "render_view"
	opApplyAction    = "apply_action"
)

// Request is one simulator call. Calls on a connection are strictly sequential.
type Request struct {
	ID   uint64          `json:"id"`
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args,omitempty"`
}

type Response struct {
	ID     uint64          `json:"id"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

type createWorldArgs struct {
	Gravity r3.Vec `json:"gravity"`
}

type spawnActorArgs struct {
	Pose   physics.Pose        `json:"pose"`
	Params physics.ActorParams `json:"params"`
}

type contactArgs struct {
	Actor physics.ActorID `json:"actor"`
	Body  physics.BodyID  `json:"body"`
}

type actorArgs struct {
	Actor physics.ActorID `json:"actor"`
}

type renderArgs struct {
	View   physics.Mat4 `json:"view"`
	Proj   physics.Mat4 `json:"proj"`
	Width  int          `json:"width"`
	Height int          `json:"height"`
}

type actionArgs struct {
	Actor  physics.ActorID `json:"actor"`
	Action [2]float64      `json:"action"`
}
