package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type quoteRequest struct {
	JobNumber string          `json:"job_number"`
	Gross     decimal.Decimal `json:"gross"`
	Count     int64           `json:"count"`
}

type quoteResponse struct {
	JobNumber string          `json:"job_number"`
	Doubled   decimal.Decimal `json:"doubled"`
	Count     int64           `json:"count"`
	At        time.Time       `json:"at"`
}

func startServer(t *testing.T, svc *Service) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	svc.Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestCallRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService("roofpro.test.QuoteService").
		Handle("Double", Unary(func(_ context.Context, req *quoteRequest) (*quoteResponse, error) {
			return &quoteResponse{
				JobNumber: req.JobNumber,
				Doubled:   req.Gross.Mul(decimal.NewFromInt(2)),
				Count:     req.Count + 1,
				At:        at,
			}, nil
		}))
	conn := startServer(t, svc)

	resp, err := Call[quoteRequest, quoteResponse](context.Background(), conn, svc.Name(), "Double", &quoteRequest{
		JobNumber: "J-1001",
		Gross:     decimal.RequireFromString("10250.55"),
		Count:     1000000,
	})
	require.NoError(t, err)
	assert.Equal(t, "J-1001", resp.JobNumber)
	assert.Equal(t, "20501.1", resp.Doubled.String())
	assert.Equal(t, int64(1000001), resp.Count)
	assert.True(t, at.Equal(resp.At))
}

func TestCallPropagatesStatus(t *testing.T) {
	svc := NewService("roofpro.test.QuoteService").
		Handle("Fail", Unary(func(_ context.Context, _ *quoteRequest) (*quoteResponse, error) {
			return nil, status.Error(codes.FailedPrecondition, "job is on hold")
		}))
	conn := startServer(t, svc)

	_, err := Call[quoteRequest, quoteResponse](context.Background(), conn, svc.Name(), "Fail", &quoteRequest{})
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
	assert.Equal(t, "job is on hold", st.Message())
}

func TestCallUnknownMethod(t *testing.T) {
	svc := NewService("roofpro.test.QuoteService")
	conn := startServer(t, svc)

	_, err := Call[quoteRequest, quoteResponse](context.Background(), conn, svc.Name(), "Missing", &quoteRequest{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestEncodeNil(t *testing.T) {
	var resp *quoteResponse
	out, err := Encode(resp)
	require.NoError(t, err)
	assert.Empty(t, out.GetFields())
}

func TestDuplicateMethodPanics(t *testing.T) {
	svc := NewService("roofpro.test.QuoteService")
	h := Unary(func(_ context.Context, _ *quoteRequest) (*quoteResponse, error) { return nil, nil })
	svc.Handle("Double", h)
	assert.Panics(t, func() { svc.Handle("Double", h) })
	assert.Equal(t, []string{"Double"}, svc.Methods())
}
