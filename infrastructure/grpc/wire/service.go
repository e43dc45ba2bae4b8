package wire

import (
	"context"

	"google.golang.org/grpc"
)

const (
	SessionServiceName    = "rendezvous.v1.Session"
	MembershipServiceName = "rendezvous.v1.Membership"
)

const (
	SessionRegisterMethod       = "/" + SessionServiceName + "/Register"
	SessionGenerateMethod       = "/" + SessionServiceName + "/Generate"
	SessionFetchMethod          = "/" + SessionServiceName + "/Fetch"
	SessionLookupMethod         = "/" + SessionServiceName + "/Lookup"
	SessionCreateEndpointMethod = "/" + SessionServiceName + "/CreateEndpoint"
	SessionReleaseMethod        = "/" + SessionServiceName + "/Release"
	SessionResolveMethod        = "/" + SessionServiceName + "/Resolve"
	SessionListMethod           = "/" + SessionServiceName + "/List"

	MembershipJoinMethod      = "/" + MembershipServiceName + "/Join"
	MembershipHeartbeatMethod = "/" + MembershipServiceName + "/Heartbeat"
	MembershipLeaveMethod     = "/" + MembershipServiceName + "/Leave"
	MembershipWorkersMethod   = "/" + MembershipServiceName + "/Workers"
	MembershipHealthMethod    = "/" + MembershipServiceName + "/Health"
)

// SessionServer is served by every worker and by the scheduler.
type SessionServer interface {
	Register(context.Context, *RegisterRequest) (*Empty, error)
	Generate(context.Context, *GenerateRequest) (*GroupIDResponse, error)
	Fetch(context.Context, *FetchRequest) (*GroupIDResponse, error)
	Lookup(context.Context, *SessionRequest) (*EntryResponse, error)
	CreateEndpoint(context.Context, *SessionRequest) (*EndpointResponse, error)
	Release(context.Context, *SessionRequest) (*Empty, error)
	Resolve(context.Context, *SessionRequest) (*HandleResponse, error)
	List(context.Context, *Empty) (*SessionsResponse, error)
}

// MembershipServer is served by the scheduler only.
type MembershipServer interface {
	Join(context.Context, *JoinRequest) (*Empty, error)
	Heartbeat(context.Context, *HeartbeatRequest) (*Empty, error)
	Leave(context.Context, *LeaveRequest) (*Empty, error)
	Workers(context.Context, *Empty) (*WorkersResponse, error)
	Health(context.Context, *Empty) (*HealthResponse, error)
}

var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionRegisterMethod, "Register", SessionServer.Register),
		unary(SessionGenerateMethod, "Generate", SessionServer.Generate),
		unary(SessionFetchMethod, "Fetch", SessionServer.Fetch),
		unary(SessionLookupMethod, "Lookup", SessionServer.Lookup),
		unary(SessionCreateEndpointMethod, "CreateEndpoint", SessionServer.CreateEndpoint),
		unary(SessionReleaseMethod, "Release", SessionServer.Release),
		unary(SessionResolveMethod, "Resolve", SessionServer.Resolve),
		unary(SessionListMethod, "List", SessionServer.List),
	},
	Metadata: "rendezvous/v1/session",
}

var MembershipServiceDesc = grpc.ServiceDesc{
	ServiceName: MembershipServiceName,
	HandlerType: (*MembershipServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MembershipJoinMethod, "Join", MembershipServer.Join),
		unary(MembershipHeartbeatMethod, "Heartbeat", MembershipServer.Heartbeat),
		unary(MembershipLeaveMethod, "Leave", MembershipServer.Leave),
		unary(MembershipWorkersMethod, "Workers", MembershipServer.Workers),
		unary(MembershipHealthMethod, "Health", MembershipServer.Health),
	},
	Metadata: "rendezvous/v1/membership",
}

func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

func RegisterMembershipServer(s grpc.ServiceRegistrar, srv MembershipServer) {
	s.RegisterService(&MembershipServiceDesc, srv)
}

// unary builds the method descriptor that decodes Req, runs the interceptor chain and
// dispatches to call on the registered server S.
func unary[S, Req, Resp any](fullMethod, name string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
