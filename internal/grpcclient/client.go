package grpcclient

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/waste-sort/internal/detector"
	"github.com/example/waste-sort/internal/imageprocessor"
	"github.com/example/waste-sort/internal/logging"
)

const (
	// ServiceName is the detector service registered with the gRPC health server.
	ServiceName = "waste.v1.Detector"
	// DetectMethod takes a JPEG frame (BytesValue) and answers a Struct of the form
	// {"detections": [{"label": string, "confidence": number}, ...]}.
	DetectMethod = "/" + ServiceName + "/Detect"
)

// DialDetector returns a ready-to-use gRPC detector client.
func DialDetector(ctx context.Context, addr string, timeout time.Duration, logger *zap.Logger, opts ...grpc.DialOption) (*Detector, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_detector", "", err)
		logger.Error("failed to dial detector", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewDetector(conn, timeout, logger), conn, nil
}

// Detector implements detector.Detector over an existing connection.
type Detector struct {
	conn    grpc.ClientConnInterface
	health  healthpb.HealthClient
	timeout time.Duration
	logger  *zap.Logger
}

// NewDetector wraps conn. A zero timeout disables the per-call deadline.
func NewDetector(conn grpc.ClientConnInterface, timeout time.Duration, logger *zap.Logger) *Detector {
	return &Detector{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		timeout: timeout,
		logger:  logger.Named("grpc_detector"),
	}
}

// Detect ships img as JPEG and converts the response into DetectedObjects.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]detector.DetectedObject, error) {
	frame, err := imageprocessor.EncodeJPEG(img)
	if err != nil {
		return nil, logging.NewOperationError("grpcclient.encode_frame", "", err)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	resp := &structpb.Struct{}
	if err := d.conn.Invoke(ctx, DetectMethod, wrapperspb.Bytes(frame), resp); err != nil {
		if status.Code(err) == codes.Unavailable || status.Code(err) == codes.FailedPrecondition {
			err = fmt.Errorf("%w: %v", detector.ErrNotLoaded, err)
		}
		wrapped := logging.NewOperationError("grpcclient.detect", "", err)
		d.logger.Error("detector call failed", zap.Error(wrapped))
		return nil, wrapped
	}
	return decodeDetections(resp)
}

// IsLoaded asks the standard gRPC health service whether the detector is serving.
func (d *Detector) IsLoaded(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp, err := d.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		d.logger.Warn("detector health check failed", zap.Error(err))
		return false
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

func decodeDetections(resp *structpb.Struct) ([]detector.DetectedObject, error) {
	field, ok := resp.GetFields()["detections"]
	if !ok {
		return nil, errors.New("detector response missing detections")
	}
	list := field.GetListValue()
	if list == nil {
		if _, isNull := field.GetKind().(*structpb.Value_NullValue); isNull {
			return []detector.DetectedObject{}, nil
		}
		return nil, errors.New("detector response detections is not a list")
	}

	out := make([]detector.DetectedObject, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		entry := v.GetStructValue()
		if entry == nil {
			return nil, fmt.Errorf("detection %d is not an object", i)
		}
		label, ok := entry.GetFields()["label"]
		if !ok || label.GetStringValue() == "" {
			return nil, fmt.Errorf("detection %d has no label", i)
		}
		conf, ok := entry.GetFields()["confidence"]
		if !ok {
			return nil, fmt.Errorf("detection %d has no confidence", i)
		}
		if _, isNumber := conf.GetKind().(*structpb.Value_NumberValue); !isNumber {
			return nil, fmt.Errorf("detection %d confidence is not a number", i)
		}
		out = append(out, detector.DetectedObject{
			Label:      label.GetStringValue(),
			Confidence: conf.GetNumberValue(),
		})
	}
	return out, nil
}
