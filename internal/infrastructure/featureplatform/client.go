package featureplatform

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
)

const ClientNameHeader = "fp-client-name"

// Dial opens a plaintext connection to the feature platform.
func Dial(endpoint string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "dial feature platform", err)
	}
	return conn, nil
}

// DynamicClient calls one unary method without generated stubs. The method
// signature is discovered through server reflection on first use.
type DynamicClient struct {
	conn       grpc.ClientConnInterface
	service    string
	method     string
	clientName string

	mu   sync.Mutex
	desc protoreflect.MethodDescriptor
}

func NewDynamicClient(conn grpc.ClientConnInterface, service, method, clientName string) *DynamicClient {
	return &DynamicClient{
		conn:       conn,
		service:    strings.TrimSpace(service),
		method:     strings.TrimSpace(method),
		clientName: clientName,
	}
}

// Call sends request, a JSON rendering of the input message, and returns the
// response rendered as JSON with proto field names.
func (c *DynamicClient) Call(ctx context.Context, request []byte) ([]byte, error) {
	md, err := c.methodDescriptor(ctx)
	if err != nil {
		return nil, err
	}

	in := dynamicpb.NewMessage(md.Input())
	if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(request, in); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode feature request", err)
	}
	out := dynamicpb.NewMessage(md.Output())

	if c.clientName != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, ClientNameHeader, c.clientName)
	}
	if err := c.conn.Invoke(ctx, c.fullMethod(), in, out); err != nil {
		return nil, wrapRPCError("invoke "+c.fullMethod(), err)
	}

	body, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(out)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUpstreamUnavailable, "decode feature response", err)
	}
	return body, nil
}

func (c *DynamicClient) fullMethod() string {
	return fmt.Sprintf("/%s/%s", c.service, c.method)
}

func (c *DynamicClient) methodDescriptor(ctx context.Context) (protoreflect.MethodDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc != nil {
		return c.desc, nil
	}
	md, err := resolveMethod(ctx, c.conn, c.service, c.method)
	if err != nil {
		return nil, wrapRPCError("resolve "+c.fullMethod(), err)
	}
	c.desc = md
	return md, nil
}

func wrapRPCError(operation string, err error) error {
	err = domain.WrapError(domain.ErrUpstreamUnavailable, operation, err)
	if isRetryableCode(status.Code(err)) {
		return fmt.Errorf("%w: %w", domain.ErrTemporary, err)
	}
	return err
}

func isRetryableCode(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}
