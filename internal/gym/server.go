package gym

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Backend provides environments and policies to a bridge server.
type Backend interface {
	MakeEnv(ctx context.Context, envID string, render bool) (Env, error)
	LoadPolicy(ctx context.Context, modelPath string) (Policy, error)
}

// RegisterBridge serves backend on s using the same wire contract the Client
// speaks. It lets Go-side environments stand in for the Python bridge.
func RegisterBridge(s *grpc.Server, backend Backend) {
	b := &bridge{
		backend:  backend,
		envs:     map[string]Env{},
		policies: map[string]Policy{},
	}

	handlers := map[string]func(context.Context, *structpb.Struct) (*structpb.Struct, error){
		methodMakeEnv:       b.makeEnv,
		methodReset:         b.reset,
		methodStep:          b.step,
		methodRender:        b.render,
		methodCloseEnv:      b.closeEnv,
		methodLoadPolicy:    b.loadPolicy,
		methodPredict:       b.predict,
		methodReleasePolicy: b.releasePolicy,
	}

	desc := grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
	}
	for name, h := range handlers {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: name,
			Handler:    unaryHandler(name, h),
		})
	}
	s.RegisterService(&desc, b)
}

func unaryHandler(name string, h func(context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := &structpb.Struct{}
		if err := dec(in); err != nil {
			return nil, err
		}
		if in.Fields == nil {
			in.Fields = map[string]*structpb.Value{}
		}
		if interceptor == nil {
			return h(ctx, in)
		}
		info := &grpc.UnaryServerInfo{FullMethod: fullMethod(name)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return h(ctx, req.(*structpb.Struct))
		})
	}
}

type bridge struct {
	backend Backend

	mu       sync.Mutex
	envs     map[string]Env
	policies map[string]Policy
}

func (b *bridge) env(in *structpb.Struct) (Env, error) {
	id := in.Fields["session_id"].GetStringValue()
	b.mu.Lock()
	defer b.mu.Unlock()
	env, ok := b.envs[id]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown session %q", id)
	}
	return env, nil
}

func (b *bridge) policy(in *structpb.Struct) (Policy, error) {
	id := in.Fields["policy_id"].GetStringValue()
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.policies[id]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown policy %q", id)
	}
	return p, nil
}

func (b *bridge) makeEnv(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	env, err := b.backend.MakeEnv(ctx, in.Fields["env_id"].GetStringValue(), in.Fields["render"].GetBoolValue())
	if err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	id := uuid.NewString()
	b.mu.Lock()
	b.envs[id] = env
	b.mu.Unlock()
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"session_id": structpb.NewStringValue(id),
	}}, nil
}

func (b *bridge) reset(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	env, err := b.env(in)
	if err != nil {
		return nil, err
	}
	obs, err := env.Reset(ctx)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	ov, err := toValue(obs)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"observation": ov}}, nil
}

func (b *bridge) step(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	env, err := b.env(in)
	if err != nil {
		return nil, err
	}
	res, err := env.Step(ctx, in.Fields["action"])
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	ov, err := toValue(res.Observation)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	fields := map[string]*structpb.Value{
		"observation": ov,
		"reward":      structpb.NewNumberValue(res.Reward),
		"done":        structpb.NewBoolValue(res.Done),
	}
	if len(res.Info) > 0 {
		info, err := structpb.NewStruct(res.Info)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		fields["info"] = structpb.NewStructValue(info)
	}
	return &structpb.Struct{Fields: fields}, nil
}

func (b *bridge) render(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	env, err := b.env(in)
	if err != nil {
		return nil, err
	}
	if err := env.Render(ctx); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &structpb.Struct{}, nil
}

func (b *bridge) closeEnv(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	env, err := b.env(in)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	delete(b.envs, in.Fields["session_id"].GetStringValue())
	b.mu.Unlock()
	if err := env.Close(); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &structpb.Struct{}, nil
}

func (b *bridge) loadPolicy(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := b.backend.LoadPolicy(ctx, in.Fields["model_path"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	id := uuid.NewString()
	b.mu.Lock()
	b.policies[id] = p
	b.mu.Unlock()

	var capabilities []*structpb.Value
	if _, ok := p.(Shielded); ok {
		capabilities = append(capabilities, structpb.NewStringValue(CapabilityShield))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"policy_id":    structpb.NewStringValue(id),
		"capabilities": structpb.NewListValue(&structpb.ListValue{Values: capabilities}),
	}}, nil
}

func (b *bridge) predict(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := b.policy(in)
	if err != nil {
		return nil, err
	}
	action, err := p.Predict(ctx, in.Fields["observation"], in.Fields["deterministic"].GetBoolValue())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	av, err := toValue(action)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	fields := map[string]*structpb.Value{"action": av}
	if s, ok := p.(Shielded); ok {
		fields["shield_activated"] = structpb.NewBoolValue(s.ShieldActivated())
	}
	return &structpb.Struct{Fields: fields}, nil
}

func (b *bridge) releasePolicy(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := b.policy(in)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	delete(b.policies, in.Fields["policy_id"].GetStringValue())
	b.mu.Unlock()
	if err := p.Close(); err != nil {
		return nil, goerr.Wrap(err, "failed to release policy")
	}
	return &structpb.Struct{}, nil
}
