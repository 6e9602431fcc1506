// Package rpc carries JSON-shaped request and response structs over gRPC.
//
// Every method exchanges a structpb.Struct, so services register hand-built
// service descriptors instead of protoc output, and the default proto codec
// and status codes still apply end to end.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Handler serves one method on decoded envelopes.
type Handler func(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

// Service collects method handlers under a fully qualified service name.
type Service struct {
	name    string
	methods map[string]Handler
}

func NewService(name string) *Service {
	return &Service{name: name, methods: make(map[string]Handler)}
}

func (s *Service) Name() string { return s.name }

// Handle registers h for method. Registering the same method twice panics.
func (s *Service) Handle(method string, h Handler) *Service {
	if _, dup := s.methods[method]; dup {
		panic(fmt.Sprintf("rpc: duplicate method %s/%s", s.name, method))
	}
	s.methods[method] = h
	return s
}

// Methods returns the registered method names in sorted order.
func (s *Service) Methods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register attaches the service to a gRPC server.
func (s *Service) Register(server grpc.ServiceRegistrar) {
	desc := grpc.ServiceDesc{
		ServiceName: s.name,
		HandlerType: (*interface{})(nil),
		Metadata:    s.name,
	}
	for _, name := range s.Methods() {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: name,
			Handler:    s.methodHandler(name, s.methods[name]),
		})
	}
	server.RegisterService(&desc, s)
}

func (s *Service) methodHandler(name string, h Handler) grpc.MethodHandler {
	fullMethod := "/" + s.name + "/" + name
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return h(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return h(ctx, req.(*structpb.Struct))
		})
	}
}

// Unary adapts a typed handler to the envelope form.
func Unary[Req any, Resp any](fn func(context.Context, *Req) (*Resp, error)) Handler {
	return func(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
		req := new(Req)
		if err := Decode(in, req); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
		}
		resp, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		out, err := Encode(resp)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
		}
		return out, nil
	}
}

// Call invokes service/method on conn with a typed request and response.
func Call[Req any, Resp any](ctx context.Context, conn grpc.ClientConnInterface, service, method string, req *Req) (*Resp, error) {
	in, err := Encode(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to encode request: %v", err)
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, "/"+service+"/"+method, in, out); err != nil {
		return nil, err
	}
	resp := new(Resp)
	if err := Decode(out, resp); err != nil {
		return nil, status.Errorf(codes.Internal, "malformed response: %v", err)
	}
	return resp, nil
}

// Encode converts any JSON-marshalable struct into an envelope. A nil value
// encodes as an empty struct.
func Encode(v interface{}) (*structpb.Struct, error) {
	out := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	if v == nil {
		return out, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return out, nil
	}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Decode fills v from an envelope.
func Decode(in *structpb.Struct, v interface{}) error {
	if in == nil {
		return nil
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
