package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gonum.org/v1/gonum/spatial/r3"

	"tmaze/internal/physics"
)

// ErrRemote wraps errors reported by the hosting simulator.
var ErrRemote = errors.New("remote simulator error")

// Client implements physics.Simulator against a Server.
type Client struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
}

var _ physics.Simulator = (*Client)(nil)

func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial physics server %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) CreateWorld(ctx context.Context, gravity r3.Vec) error {
	return c.call(ctx, opCreateWorld, createWorldArgs{Gravity: gravity}, nil)
}

func (c *Client) LoadStaticBody(ctx context.Context, body physics.StaticBody) (physics.BodyID, error) {
	var id physics.BodyID
	err := c.call(ctx, opLoadStaticBody, body, &id)
	return id, err
}

func (c *Client) SpawnActor(ctx context.Context, pose physics.Pose, params physics.ActorParams) (physics.ActorID, error) {
	var id physics.ActorID
	err := c.call(ctx, opSpawnActor, spawnActorArgs{Pose: pose, Params: params}, &id)
	return id, err
}

func (c *Client) StepSub(ctx context.Context) error {
	return c.call(ctx, opStepSub, nil, nil)
}

func (c *Client) QueryContacts(ctx context.Context, actor physics.ActorID, body physics.BodyID) ([]physics.Contact, error) {
	var contacts []physics.Contact
	err := c.call(ctx, opQueryContacts, contactArgs{Actor: actor, Body: body}, &contacts)
	return contacts, err
}

func (c *Client) QueryPose(ctx context.Context, actor physics.ActorID) (physics.Pose, error) {
	var pose physics.Pose
	err := c.call(ctx, opQueryPose, actorArgs{Actor: actor}, &pose)
	return pose, err
}

func (c *Client) RenderView(ctx context.Context, view, proj physics.Mat4, width, height int) (physics.Capture, error) {
	var capture physics.Capture
	err := c.call(ctx, opRenderView, renderArgs{View: view, Proj: proj, Width: width, Height: height}, &capture)
	return capture, err
}

func (c *Client) ApplyAction(ctx context.Context, actor physics.ActorID, action [2]float64) error {
	return c.call(ctx, opApplyAction, actionArgs{Actor: actor, Action: action}, nil)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) call(ctx context.Context, op string, args any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return errors.New("physics client is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	_ = c.conn.SetWriteDeadline(deadline)
	_ = c.conn.SetReadDeadline(deadline)

	c.nextID++
	req := Request{ID: c.nextID, Op: op}
	if args != nil {
		payload, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("%s: encode args: %w", op, err)
		}
		req.Args = payload
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("%s: send: %w", op, err)
	}

	var resp Response
	if err := c.conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("%s: receive: %w", op, err)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("%s: response id %d does not match request %d", op, resp.ID, req.ID)
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: %s", ErrRemote, resp.Error)
	}
	if result != nil {
		if len(resp.Result) == 0 {
			return fmt.Errorf("%s: empty result", op)
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("%s: decode result: %w", op, err)
		}
	}
	return nil
}
