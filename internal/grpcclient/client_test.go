package grpcclient

import (
	"context"
	"errors"
	"image"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/waste-sort/internal/detector"
)

type fakeDetectorServer struct {
	response  map[string]any
	err       error
	lastFrame []byte
}

func (f *fakeDetectorServer) detect(_ context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	f.lastFrame = in.GetValue()
	if f.err != nil {
		return nil, f.err
	}
	return structpb.NewStruct(f.response)
}

func registerFakeDetector(s *grpc.Server, impl *fakeDetectorServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Detect",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := new(wrapperspb.BytesValue)
				if err := dec(in); err != nil {
					return nil, err
				}
				return srv.(*fakeDetectorServer).detect(ctx, in)
			},
		}},
	}, impl)
}

func startServer(t *testing.T, impl *fakeDetectorServer, servingStatus healthpb.HealthCheckResponse_ServingStatus) *Detector {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	registerFakeDetector(server, impl)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, servingStatus)
	healthpb.RegisterHealthServer(server, healthServer)

	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	det, conn, err := DialDetector(context.Background(), "bufnet", time.Second, zap.NewNop(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return det
}

func TestDetectDecodesDetections(t *testing.T) {
	impl := &fakeDetectorServer{response: map[string]any{
		"detections": []any{
			map[string]any{"label": "bottle", "confidence": 0.82},
			map[string]any{"label": "banana", "confidence": 0.41},
		},
	}}
	det := startServer(t, impl, healthpb.HealthCheckResponse_SERVING)

	got, err := det.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 16, 16)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []detector.DetectedObject{{Label: "bottle", Confidence: 0.82}, {Label: "banana", Confidence: 0.41}}
	if len(got) != len(want) {
		t.Fatalf("expected %d detections, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("detection %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
	if len(impl.lastFrame) < 2 || impl.lastFrame[0] != 0xFF || impl.lastFrame[1] != 0xD8 {
		t.Fatal("expected the frame to be sent as JPEG")
	}
}

func TestDetectMapsUnavailableToNotLoaded(t *testing.T) {
	impl := &fakeDetectorServer{err: status.Error(codes.FailedPrecondition, "weights not loaded")}
	det := startServer(t, impl, healthpb.HealthCheckResponse_SERVING)

	_, err := det.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 8, 8)))
	if !errors.Is(err, detector.ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}

func TestDetectSurfacesServerErrors(t *testing.T) {
	impl := &fakeDetectorServer{err: status.Error(codes.Internal, "inference crashed")}
	det := startServer(t, impl, healthpb.HealthCheckResponse_SERVING)

	_, err := det.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 8, 8)))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if errors.Is(err, detector.ErrNotLoaded) {
		t.Fatal("internal errors must not be reported as not loaded")
	}
}

func TestIsLoadedFollowsHealthStatus(t *testing.T) {
	serving := startServer(t, &fakeDetectorServer{}, healthpb.HealthCheckResponse_SERVING)
	if !serving.IsLoaded(context.Background()) {
		t.Fatal("expected serving detector to be loaded")
	}

	notServing := startServer(t, &fakeDetectorServer{}, healthpb.HealthCheckResponse_NOT_SERVING)
	if notServing.IsLoaded(context.Background()) {
		t.Fatal("expected not-serving detector to be reported as not loaded")
	}
}

func TestDecodeDetectionsRejectsMalformedPayloads(t *testing.T) {
	tests := map[string]map[string]any{
		"missing list":       {},
		"not a list":         {"detections": "bottle"},
		"entry not object":   {"detections": []any{"bottle"}},
		"missing label":      {"detections": []any{map[string]any{"confidence": 0.4}}},
		"missing confidence": {"detections": []any{map[string]any{"label": "cup"}}},
		"string confidence":  {"detections": []any{map[string]any{"label": "cup", "confidence": "high"}}},
	}

	for name, payload := range tests {
		name, payload := name, payload
		t.Run(name, func(t *testing.T) {
			s, err := structpb.NewStruct(payload)
			if err != nil {
				t.Fatalf("failed to build struct: %v", err)
			}
			if _, err := decodeDetections(s); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestDecodeDetectionsAcceptsNullList(t *testing.T) {
	s, err := structpb.NewStruct(map[string]any{"detections": nil})
	if err != nil {
		t.Fatalf("failed to build struct: %v", err)
	}
	got, err := decodeDetections(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no detections, got %d", len(got))
	}
}
