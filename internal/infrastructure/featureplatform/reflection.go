package featureplatform

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// resolveMethod asks the server for the descriptors that define service and
// returns the named method.
func resolveMethod(ctx context.Context, conn grpc.ClientConnInterface, service, method string) (protoreflect.MethodDescriptor, error) {
	stream, err := reflectionpb.NewServerReflectionClient(conn).ServerReflectionInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("open reflection stream: %w", err)
	}
	defer func() { _ = stream.CloseSend() }()

	fetch := func(req *reflectionpb.ServerReflectionRequest) ([]*descriptorpb.FileDescriptorProto, error) {
		if err := stream.Send(req); err != nil {
			return nil, fmt.Errorf("send reflection request: %w", err)
		}
		resp, err := stream.Recv()
		if err != nil {
			return nil, fmt.Errorf("receive reflection response: %w", err)
		}
		if e := resp.GetErrorResponse(); e != nil {
			return nil, fmt.Errorf("reflection error %d: %s", e.GetErrorCode(), e.GetErrorMessage())
		}
		raw := resp.GetFileDescriptorResponse().GetFileDescriptorProto()
		out := make([]*descriptorpb.FileDescriptorProto, 0, len(raw))
		for _, b := range raw {
			fdp := &descriptorpb.FileDescriptorProto{}
			if err := proto.Unmarshal(b, fdp); err != nil {
				return nil, fmt.Errorf("decode file descriptor: %w", err)
			}
			out = append(out, fdp)
		}
		return out, nil
	}

	pending := map[string]*descriptorpb.FileDescriptorProto{}
	add := func(files []*descriptorpb.FileDescriptorProto) {
		for _, f := range files {
			pending[f.GetName()] = f
		}
	}

	files, err := fetch(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_FileContainingSymbol{FileContainingSymbol: service},
	})
	if err != nil {
		return nil, err
	}
	add(files)

	local := new(protoregistry.Files)
	resolver := chainResolver{local: local}

	// Pull missing dependencies until every import resolves locally, globally
	// or from what the server already sent.
	requested := map[string]bool{}
	for missing := missingDeps(pending, resolver); len(missing) > 0; missing = missingDeps(pending, resolver) {
		for _, name := range missing {
			if requested[name] {
				return nil, fmt.Errorf("server did not return descriptor %s", name)
			}
			requested[name] = true
			files, err := fetch(&reflectionpb.ServerReflectionRequest{
				MessageRequest: &reflectionpb.ServerReflectionRequest_FileByFilename{FileByFilename: name},
			})
			if err != nil {
				return nil, err
			}
			if len(files) == 0 {
				return nil, fmt.Errorf("server has no descriptor for %s", name)
			}
			add(files)
		}
	}

	for len(pending) > 0 {
		progressed := false
		for name, fdp := range pending {
			if !depsReady(fdp, resolver) {
				continue
			}
			fd, err := protodesc.NewFile(fdp, resolver)
			if err != nil {
				return nil, fmt.Errorf("build descriptor %s: %w", name, err)
			}
			if err := local.RegisterFile(fd); err != nil {
				return nil, fmt.Errorf("register descriptor %s: %w", name, err)
			}
			delete(pending, name)
			progressed = true
		}
		if !progressed {
			return nil, errors.New("descriptor dependencies form a cycle")
		}
	}

	desc, err := local.FindDescriptorByName(protoreflect.FullName(service))
	if err != nil {
		return nil, fmt.Errorf("find service %s: %w", service, err)
	}
	svc, ok := desc.(protoreflect.ServiceDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is not a service", service)
	}
	md := svc.Methods().ByName(protoreflect.Name(method))
	if md == nil {
		return nil, fmt.Errorf("service %s has no method %s", service, method)
	}
	return md, nil
}

func missingDeps(pending map[string]*descriptorpb.FileDescriptorProto, r chainResolver) []string {
	var out []string
	seen := map[string]bool{}
	for _, fdp := range pending {
		for _, dep := range fdp.GetDependency() {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			if _, ok := pending[dep]; ok {
				continue
			}
			if _, err := r.FindFileByPath(dep); err == nil {
				continue
			}
			out = append(out, dep)
		}
	}
	return out
}

func depsReady(fdp *descriptorpb.FileDescriptorProto, r chainResolver) bool {
	for _, dep := range fdp.GetDependency() {
		if _, err := r.FindFileByPath(dep); err != nil {
			return false
		}
	}
	return true
}

// chainResolver prefers descriptors fetched from the server and falls back
// to the ones linked into the binary.
type chainResolver struct {
	local *protoregistry.Files
}

func (r chainResolver) FindFileByPath(path string) (protoreflect.FileDescriptor, error) {
	if fd, err := r.local.FindFileByPath(path); err == nil {
		return fd, nil
	}
	return protoregistry.GlobalFiles.FindFileByPath(path)
}

func (r chainResolver) FindDescriptorByName(name protoreflect.FullName) (protoreflect.Descriptor, error) {
	if d, err := r.local.FindDescriptorByName(name); err == nil {
		return d, nil
	}
	return protoregistry.GlobalFiles.FindDescriptorByName(name)
}
