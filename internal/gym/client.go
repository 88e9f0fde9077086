package gym

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region wire
// ServiceName is the gRPC service exposed by the Python gym bridge. Requests
// and replies are google.protobuf.Struct messages, so no generated stubs are
// needed on either side.
const ServiceName = "shine.gym.v1.Bridge"

const (
	methodMakeEnv       = "MakeEnv"
	methodReset         = "Reset"
	methodStep          = "Step"
	methodRender        = "Render"
	methodCloseEnv      = "CloseEnv"
	methodLoadPolicy    = "LoadPolicy"
	methodPredict       = "Predict"
	methodReleasePolicy = "ReleasePolicy"
)

// CapabilityShield is listed in a LoadPolicy reply when the policy reports
// shield activations alongside its actions.
const CapabilityShield = "shield"

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// #endregion wire

// #region client-struct
// Client wraps the gRPC connection to the Python gym bridge.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// NewClient connects to the gym bridge at addr.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gym bridge client", goerr.V("addr", addr))
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn creates a Client on top of an existing connection. Tests
// pass an in-memory connection or a fake ClientConnInterface.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection if the client owns one.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region invoke
func (c *Client) call(ctx context.Context, method string, fields map[string]*structpb.Value) (*structpb.Struct, error) {
	req := &structpb.Struct{Fields: fields}
	reply := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, fullMethod(method), req, reply); err != nil {
		return nil, goerr.Wrap(err, "gym bridge call failed", goerr.V("method", method))
	}
	if reply.Fields == nil {
		reply.Fields = map[string]*structpb.Value{}
	}
	return reply, nil
}

func toValue(v any) (*structpb.Value, error) {
	if pv, ok := v.(*structpb.Value); ok {
		if pv == nil {
			return structpb.NewNullValue(), nil
		}
		return pv, nil
	}
	pv, err := structpb.NewValue(v)
	if err != nil {
		return nil, goerr.Wrap(err, "value is not representable on the wire", goerr.V("value", v))
	}
	return pv, nil
}

// #endregion invoke

// #region make-env
// MakeEnv creates a new environment session on the bridge.
func (c *Client) MakeEnv(ctx context.Context, envID string, render bool) (Env, error) {
	reply, err := c.call(ctx, methodMakeEnv, map[string]*structpb.Value{
		"env_id": structpb.NewStringValue(envID),
		"render": structpb.NewBoolValue(render),
	})
	if err != nil {
		return nil, err
	}
	session := reply.Fields["session_id"].GetStringValue()
	if session == "" {
		return nil, goerr.New("bridge returned no session id", goerr.V("env_id", envID))
	}
	return &remoteEnv{client: c, session: session}, nil
}

type remoteEnv struct {
	client  *Client
	session string
}

func (e *remoteEnv) sessionField() map[string]*structpb.Value {
	return map[string]*structpb.Value{"session_id": structpb.NewStringValue(e.session)}
}

func (e *remoteEnv) Reset(ctx context.Context) (Observation, error) {
	reply, err := e.client.call(ctx, methodReset, e.sessionField())
	if err != nil {
		return nil, err
	}
	return reply.Fields["observation"], nil
}

func (e *remoteEnv) Step(ctx context.Context, action Action) (StepResult, error) {
	av, err := toValue(action)
	if err != nil {
		return StepResult{}, err
	}
	fields := e.sessionField()
	fields["action"] = av

	reply, err := e.client.call(ctx, methodStep, fields)
	if err != nil {
		return StepResult{}, err
	}

	f := reply.Fields
	res := StepResult{
		Observation: f["observation"],
		Reward:      f["reward"].GetNumberValue(),
		// gymnasium splits termination into terminated/truncated; classic gym
		// reports a single done flag.
		Done: f["done"].GetBoolValue() || f["terminated"].GetBoolValue() || f["truncated"].GetBoolValue(),
	}
	if info := f["info"].GetStructValue(); info != nil {
		res.Info = info.AsMap()
	}
	return res, nil
}

func (e *remoteEnv) Render(ctx context.Context) error {
	_, err := e.client.call(ctx, methodRender, e.sessionField())
	return err
}

func (e *remoteEnv) Close() error {
	_, err := e.client.call(context.Background(), methodCloseEnv, e.sessionField())
	return err
}

// #endregion make-env

// #region load-policy
// LoadPolicy asks the bridge to deserialize the policy at modelPath. The
// returned Policy implements Shielded only if the bridge advertises the
// shield capability for it.
func (c *Client) LoadPolicy(ctx context.Context, modelPath string) (Policy, error) {
	reply, err := c.call(ctx, methodLoadPolicy, map[string]*structpb.Value{
		"model_path": structpb.NewStringValue(modelPath),
	})
	if err != nil {
		return nil, err
	}
	id := reply.Fields["policy_id"].GetStringValue()
	if id == "" {
		return nil, goerr.New("bridge returned no policy id", goerr.V("model_path", modelPath))
	}

	p := &remotePolicy{client: c, id: id}
	for _, capability := range reply.Fields["capabilities"].GetListValue().GetValues() {
		if capability.GetStringValue() == CapabilityShield {
			return &shieldedPolicy{remotePolicy: p}, nil
		}
	}
	return p, nil
}

type remotePolicy struct {
	client *Client
	id     string
}

func (p *remotePolicy) predict(ctx context.Context, obs Observation, deterministic bool) (*structpb.Struct, error) {
	ov, err := toValue(obs)
	if err != nil {
		return nil, err
	}
	return p.client.call(ctx, methodPredict, map[string]*structpb.Value{
		"policy_id":     structpb.NewStringValue(p.id),
		"observation":   ov,
		"deterministic": structpb.NewBoolValue(deterministic),
	})
}

func (p *remotePolicy) Predict(ctx context.Context, obs Observation, deterministic bool) (Action, error) {
	reply, err := p.predict(ctx, obs, deterministic)
	if err != nil {
		return nil, err
	}
	return reply.Fields["action"], nil
}

func (p *remotePolicy) Close() error {
	_, err := p.client.call(context.Background(), methodReleasePolicy, map[string]*structpb.Value{
		"policy_id": structpb.NewStringValue(p.id),
	})
	return err
}

type shieldedPolicy struct {
	*remotePolicy
	activated bool
}

func (p *shieldedPolicy) Predict(ctx context.Context, obs Observation, deterministic bool) (Action, error) {
	reply, err := p.predict(ctx, obs, deterministic)
	if err != nil {
		p.activated = false
		return nil, err
	}
	p.activated = reply.Fields["shield_activated"].GetBoolValue()
	return reply.Fields["action"], nil
}

func (p *shieldedPolicy) ShieldActivated() bool {
	return p.activated
}

// #endregion load-policy
