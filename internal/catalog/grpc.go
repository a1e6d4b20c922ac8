package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	checkStockMethod  = "/catalog.v1.CatalogService/CheckStock"
	verifyPromoMethod = "/catalog.v1.CatalogService/VerifyPromo"
)

// jsonCodec carries the catalog messages as JSON so both sides can share the
// plain Go structs in this package.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

// GRPCClient calls the catalog over a gRPC connection.
type GRPCClient struct {
	conn grpc.ClientConnInterface
}

func NewGRPCClient(conn grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{conn: conn}
}

func (c *GRPCClient) CheckStock(ctx context.Context, productIDs []int64) ([]Product, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var resp stockResponse
	err := c.conn.Invoke(ctx, checkStockMethod, &stockRequest{ProductIDs: productIDs}, &resp, grpc.ForceCodec(jsonCodec{}))
	if err != nil {
		return nil, fmt.Errorf("check stock: %w", err)
	}
	return resp.Products, nil
}

func (c *GRPCClient) VerifyPromo(ctx context.Context, req VerifyRequest) (*Verification, error) {
	var resp Verification
	if err := c.conn.Invoke(ctx, verifyPromoMethod, &req, &resp, grpc.ForceCodec(jsonCodec{})); err != nil {
		return nil, fmt.Errorf("verify promo: %w", err)
	}
	return &resp, nil
}

// NewGRPCServer exposes a Catalog with the same JSON messages GRPCClient sends.
func NewGRPCServer(cat Catalog, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
			method, ok := grpc.MethodFromServerStream(stream)
			if !ok {
				return status.Error(codes.Internal, "method not found in stream")
			}
			ctx := stream.Context()

			switch method {
			case checkStockMethod:
				var req stockRequest
				if err := stream.RecvMsg(&req); err != nil {
					return status.Errorf(codes.InvalidArgument, "failed to read request: %v", err)
				}
				products, err := cat.CheckStock(ctx, req.ProductIDs)
				if err != nil {
					return status.Errorf(codes.Internal, "failed to check stock: %v", err)
				}
				return stream.SendMsg(&stockResponse{Products: products})

			case verifyPromoMethod:
				var req VerifyRequest
				if err := stream.RecvMsg(&req); err != nil {
					return status.Errorf(codes.InvalidArgument, "failed to read request: %v", err)
				}
				v, err := cat.VerifyPromo(ctx, req)
				if err != nil {
					return status.Errorf(codes.Internal, "failed to verify promo: %v", err)
				}
				return stream.SendMsg(v)

			default:
				return status.Errorf(codes.Unimplemented, "unknown method %s", method)
			}
		}),
	)
	return grpc.NewServer(opts...)
}
