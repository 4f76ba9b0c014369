package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"TokenLedger/internal/observability"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type routeFunc func(ctx context.Context, r *http.Request, params map[string]string) (any, error)

// NewGatewayMux builds the HTTP/JSON surface. Routes call srv in-process
// rather than proxying to the gRPC listener; errors are rendered by the
// gateway's standard status-to-HTTP mapping.
func NewGatewayMux(srv TokenServiceServer, metrics *observability.Metrics) (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()
	marshaler := &runtime.JSONPb{}

	routes := []struct {
		method, pattern, name string
		call                  routeFunc
	}{
		{http.MethodGet, "/v1/token", "Metadata", func(ctx context.Context, _ *http.Request, _ map[string]string) (any, error) {
			return srv.Metadata(ctx, &MetadataRequest{})
		}},
		{http.MethodGet, "/v1/supply", "TotalSupply", func(ctx context.Context, _ *http.Request, _ map[string]string) (any, error) {
			return srv.TotalSupply(ctx, &TotalSupplyRequest{})
		}},
		{http.MethodGet, "/v1/balances/{owner}", "BalanceOf", func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			return srv.BalanceOf(ctx, &BalanceOfRequest{Owner: p["owner"]})
		}},
		{http.MethodGet, "/v1/allowances/{owner}/{spender}", "Allowance", func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			return srv.Allowance(ctx, &AllowanceRequest{Owner: p["owner"], Spender: p["spender"]})
		}},
		{http.MethodGet, "/v1/status", "Status", func(ctx context.Context, _ *http.Request, _ map[string]string) (any, error) {
			return srv.Status(ctx, &StatusRequest{})
		}},
		{http.MethodPost, "/v1/transfer", "Transfer", body(srv.Transfer)},
		{http.MethodPost, "/v1/transfer-from", "TransferFrom", body(srv.TransferFrom)},
		{http.MethodPost, "/v1/approve", "Approve", body(srv.Approve)},
		{http.MethodPost, "/v1/mint", "Mint", body(srv.Mint)},
		{http.MethodPost, "/v1/burn", "Burn", body(srv.Burn)},
	}

	for _, rt := range routes {
		h := serve(mux, marshaler, metrics, rt.name, rt.call)
		if err := mux.HandlePath(rt.method, rt.pattern, h); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return mux, nil
}

func body[Req, Resp any](call func(context.Context, *Req) (*Resp, error)) routeFunc {
	return func(ctx context.Context, r *http.Request, _ map[string]string) (any, error) {
		req := new(Req)
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			return nil, invalidArgument("body", err)
		}
		return call(ctx, req)
	}
}

func serve(mux *runtime.ServeMux, m runtime.Marshaler, metrics *observability.Metrics, name string, call routeFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		ctx := incomingContext(r)

		resp, err := call(ctx, r, params)
		observeRPC(metrics, name, err, start)
		if err != nil {
			runtime.HTTPError(ctx, mux, m, w, r, err)
			return
		}

		buf, err := m.Marshal(resp)
		if err != nil {
			runtime.HTTPError(ctx, mux, m, w, r, status.Error(codes.Internal, "encode response"))
			return
		}
		w.Header().Set("Content-Type", m.ContentType(resp))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf)
	}
}

// incomingContext mirrors the caller header into gRPC metadata so both
// surfaces resolve identity through CallerFromContext.
func incomingContext(r *http.Request) context.Context {
	md := metadata.MD{}
	if v := r.Header.Get(CallerHeader); v != "" {
		md.Set(CallerHeader, v)
	}
	ctx := runtime.NewServerMetadataContext(r.Context(), runtime.ServerMetadata{})
	return metadata.NewIncomingContext(ctx, md)
}

// HTTPStatus is the status code the gateway writes for err.
func HTTPStatus(err error) int {
	return runtime.HTTPStatusFromCode(status.Code(err))
}

func observeRPC(metrics *observability.Metrics, method string, err error, start time.Time) {
	if metrics == nil {
		return
	}
	metrics.RPCRequests.WithLabelValues(method, status.Code(err).String()).Inc()
	metrics.RPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
