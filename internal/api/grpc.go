package api

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"crossexchange/internal/domain"
	"crossexchange/internal/engine"
)

const (
	tradingServiceName = "crossexchange.v1.TradingService"
	errorDomain        = "crossexchange"
)

// TradingServer is the server API of crossexchange.v1.TradingService.
// Messages are google.protobuf.Struct values carrying the same fields as the
// HTTP JSON bodies.
type TradingServer interface {
	ExecuteTrade(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTrades(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// TradingServiceDesc describes crossexchange.v1.TradingService.
var TradingServiceDesc = grpc.ServiceDesc{
	ServiceName: tradingServiceName,
	HandlerType: (*TradingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExecuteTrade", Handler: unaryHandler("ExecuteTrade", TradingServer.ExecuteTrade)},
		{MethodName: "ListTrades", Handler: unaryHandler("ListTrades", TradingServer.ListTrades)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "crossexchange/v1/trading.proto",
}

type unaryMethod func(TradingServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + tradingServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TradingServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TradingServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TradingService serves trade execution over gRPC.
type TradingService struct {
	executor *engine.Executor
	log      *slog.Logger
}

// NewTradingService creates a TradingService backed by the executor.
func NewTradingService(executor *engine.Executor, log *slog.Logger) *TradingService {
	if log == nil {
		log = slog.Default()
	}
	return &TradingService{executor: executor, log: log.With("component", "grpc")}
}

// RegisterGRPC registers the service on the given gRPC server instance.
func (s *TradingService) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&TradingServiceDesc, s)
}

// ExecuteTrade executes {action, symbol, noOfShares, portfolioId} and
// returns the recorded trade.
func (s *TradingService) ExecuteTrade(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	shares, err := intField(fields, "noOfShares")
	if err != nil {
		return nil, s.toStatus(err)
	}
	pid, err := intField(fields, "portfolioId")
	if err != nil {
		return nil, s.toStatus(err)
	}
	req, err := domain.NewTradeRequest(
		fields["action"].GetStringValue(),
		fields["symbol"].GetStringValue(),
		shares, pid,
	)
	if err != nil {
		return nil, s.toStatus(err)
	}

	t, err := s.executor.Execute(ctx, req)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return structpb.NewStruct(tradeFields(t))
}

// ListTrades returns {trades: [...]} for {portfolioId}.
func (s *TradingService) ListTrades(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	pid, err := intField(in.GetFields(), "portfolioId")
	if err != nil {
		return nil, s.toStatus(err)
	}
	trades, err := s.executor.Trades(ctx, pid)
	if err != nil {
		return nil, s.toStatus(err)
	}
	list := make([]any, 0, len(trades))
	for _, t := range trades {
		list = append(list, tradeFields(t))
	}
	return structpb.NewStruct(map[string]any{"trades": list})
}

func (s *TradingService) toStatus(err error) error {
	reason := domain.ReasonOf(err)
	var code codes.Code
	switch reason {
	case domain.ReasonNone:
		s.log.Error("grpc internal error", "error", err)
		return status.Error(codes.Internal, "internal error")
	case domain.ReasonInvalidRequest:
		code = codes.InvalidArgument
	case domain.ReasonPortfolioNotFound:
		code = codes.NotFound
	default:
		code = codes.FailedPrecondition
	}
	st, detailErr := status.New(code, err.Error()).WithDetails(&errdetails.ErrorInfo{
		Reason: string(reason),
		Domain: errorDomain,
	})
	if detailErr != nil {
		return status.Error(code, err.Error())
	}
	return st.Err()
}

// ReasonFromStatus recovers the rejection reason a TradingService error
// carries, or ReasonNone.
func ReasonFromStatus(err error) domain.Reason {
	st, ok := status.FromError(err)
	if !ok {
		return domain.ReasonNone
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == errorDomain {
			return domain.Reason(info.GetReason())
		}
	}
	return domain.ReasonNone
}

func intField(fields map[string]*structpb.Value, name string) (int64, error) {
	v, ok := fields[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", domain.ErrInvalidRequest, name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", domain.ErrInvalidRequest, name)
	}
	f := n.NumberValue
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidRequest, name)
	}
	return int64(f), nil
}

func tradeFields(t domain.Trade) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"action":      t.Action.String(),
		"symbol":      t.Symbol.String(),
		"noOfShares":  float64(t.NoOfShares),
		"price":       t.Price.String(),
		"portfolioId": float64(t.PortfolioID),
		"createdAt":   t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// TradingClient is the client API of crossexchange.v1.TradingService.
type TradingClient struct {
	cc grpc.ClientConnInterface
}

// NewTradingClient wraps a connection to a TradingService.
func NewTradingClient(cc grpc.ClientConnInterface) *TradingClient {
	return &TradingClient{cc: cc}
}

// ExecuteTrade calls TradingService.ExecuteTrade.
func (c *TradingClient) ExecuteTrade(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+tradingServiceName+"/ExecuteTrade", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTrades calls TradingService.ListTrades.
func (c *TradingClient) ListTrades(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+tradingServiceName+"/ListTrades", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
