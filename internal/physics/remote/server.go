package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tmaze/internal/physics"
)

// Factory builds a fresh simulator for each connection.
type Factory func() (physics.Simulator, error)

// Server hosts one simulator per websocket connection.
type Server struct {
	factory  Factory
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewServer(factory Factory, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		factory: factory,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sim, err := s.factory()
	if err != nil {
		s.logger.Error("create simulator", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := sim.Close(); err != nil {
			s.logger.Warn("close simulator", zap.Error(err))
		}
	}()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.logger.Info("physics client connected", zap.String("remote", remote))
	ctx := r.Context()
	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("physics client disconnected", zap.String("remote", remote))
			} else {
				s.logger.Warn("read request", zap.String("remote", remote), zap.Error(err))
			}
			return
		}

		resp := Response{ID: req.ID}
		result, err := dispatch(ctx, sim, req)
		if err != nil {
			resp.Error = err.Error()
		} else if result != nil {
			payload, err := json.Marshal(result)
			if err != nil {
				resp.Error = fmt.Sprintf("encode result: %v", err)
			} else {
				resp.Result = payload
			}
		}
		if err := conn.WriteJSON(resp); err != nil {
			s.logger.Warn("write response", zap.String("remote", remote), zap.Error(err))
			return
		}
	}
}

func dispatch(ctx context.Context, sim physics.Simulator, req Request) (any, error) {
	switch req.Op {
	case opCreateWorld:
		var args createWorldArgs
		if err := decodeArgs(req, &args); err != nil {
			return nil, err
		}
		return nil, sim.CreateWorld(ctx, args.Gravity)
	case opLoadStaticBody:
		var body physics.StaticBody
		if err := decodeArgs(req, &body); err != nil {
			return nil, err
		}
		return sim.LoadStaticBody(ctx, body)
	case opSpawnActor:
		var args spawnActorArgs
		if err := decodeArgs(req, &args); err != nil {
			return nil, err
		}
		return sim.SpawnActor(ctx, args.Pose, args.Params)
	case opStepSub:
		return nil, sim.StepSub(ctx)
	case opQueryContacts:
		var args contactArgs
		if err := decodeArgs(req, &args); err != nil {
			return nil, err
		}
		return sim.QueryContacts(ctx, args.Actor, args.Body)
	case opQueryPose:
		var args actorArgs
		if err := decodeArgs(req, &args); err != nil {
			return nil, err
		}
		return sim.QueryPose(ctx, args.Actor)
	case opRenderView:
		var args renderArgs
		if err := decodeArgs(req, &args); err != nil {
			return nil, err
		}
		return sim.RenderView(ctx, args.View, args.Proj, args.Width, args.Height)
	case opApplyAction:
		var args actionArgs
		if err := decodeArgs(req, &args); err != nil {
			return nil, err
		}
		return nil, sim.ApplyAction(ctx, args.Actor, args.Action)
	default:
		return nil, fmt.Errorf("unsupported op: %s", req.Op)
	}
}

func decodeArgs(req Request, out any) error {
	if len(req.Args) == 0 {
		return errors.New(req.Op + ": missing args")
	}
	if err := json.Unmarshal(req.Args, out); err != nil {
		return fmt.Errorf("%s: decode args: %w", req.Op, err)
	}
	return nil
}
