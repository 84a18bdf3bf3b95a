package grpc_control

import (
	"context"
	"encoding/json"

	"volume-observer/src/models"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified Control service name.
const ServiceName = "volumeobserver.v1.Control"

// Messages are the well-known Struct and Empty types, so the service needs
// no generated code. Payloads carry the JSON form of the models types.

// -----------------------------------------------------------------------------
// Service Descriptor
// -----------------------------------------------------------------------------

type controlServer interface {
	ListSymbols(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListSources(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetModel(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Fit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateSymbols(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var ControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*controlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListSymbols", Handler: emptyHandler("ListSymbols", controlServer.ListSymbols)},
		{MethodName: "ListSources", Handler: emptyHandler("ListSources", controlServer.ListSources)},
		{MethodName: "GetModel", Handler: structHandler("GetModel", controlServer.GetModel)},
		{MethodName: "Fit", Handler: structHandler("Fit", controlServer.Fit)},
		{MethodName: "UpdateSymbols", Handler: structHandler("UpdateSymbols", controlServer.UpdateSymbols)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "volumeobserver/v1/control",
}

func emptyHandler(name string, call func(controlServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(controlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(controlServer), ctx, req.(*emptypb.Empty))
		})
	}
}

func structHandler(name string, call func(controlServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(controlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(controlServer), ctx, req.(*structpb.Struct))
		})
	}
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// ControlClient calls the Control service with typed requests.
type ControlClient struct {
	cc grpc.ClientConnInterface
}

func NewControlClient(cc grpc.ClientConnInterface) *ControlClient {
	return &ControlClient{cc: cc}
}

func (c *ControlClient) invoke(ctx context.Context, method string, in interface{}, out interface{}) error {
	var req interface{} = &emptypb.Empty{}
	if in != nil {
		s, err := toStruct(in)
		if err != nil {
			return err
		}
		req = s
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp); err != nil {
		return err
	}
	return fromStruct(resp, out)
}

func (c *ControlClient) ListSymbols(ctx context.Context) ([]string, error) {
	var out struct {
		Symbols []string `json:"symbols"`
	}
	err := c.invoke(ctx, "ListSymbols", nil, &out)
	return out.Symbols, err
}

func (c *ControlClient) ListSources(ctx context.Context) ([]string, error) {
	var out struct {
		Sources []string `json:"sources"`
	}
	err := c.invoke(ctx, "ListSources", nil, &out)
	return out.Sources, err
}

func (c *ControlClient) GetModel(ctx context.Context, symbol string) (*models.MVolumeModel, error) {
	var out models.MVolumeModel
	if err := c.invoke(ctx, "GetModel", map[string]string{"symbol": symbol}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ControlClient) Fit(ctx context.Context, req models.MFitRequest) (*models.MFitResult, error) {
	var out models.MFitResult
	if err := c.invoke(ctx, "Fit", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ControlClient) UpdateSymbols(ctx context.Context, symbols []string) (int, error) {
	var out struct {
		SymbolCount int `json:"symbol_count"`
	}
	err := c.invoke(ctx, "UpdateSymbols", map[string]interface{}{"symbols": symbols}, &out)
	return out.SymbolCount, err
}

// -----------------------------------------------------------------------------
// Struct conversion
// -----------------------------------------------------------------------------

func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromStruct(s *structpb.Struct, out interface{}) error {
	raw, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
