package server

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const documentServiceFile = "docprocessor/v1/documents.proto"

// documentMethodTypes lists the request and response message of each RPC.
var documentMethodTypes = []struct {
	name    string
	in, out proto.Message
}{
	{"QueueDocument", &wrapperspb.StringValue{}, &emptypb.Empty{}},
	{"ResubmitDocument", &wrapperspb.StringValue{}, &emptypb.Empty{}},
	{"GetDocument", &wrapperspb.StringValue{}, &structpb.Struct{}},
	{"DeleteDocument", &wrapperspb.StringValue{}, &emptypb.Empty{}},
	{"RecoverStranded", &emptypb.Empty{}, &wrapperspb.Int64Value{}},
	{"CleanupStuckDocuments", &durationpb.Duration{}, &wrapperspb.Int64Value{}},
}

// The service has no .proto source; its descriptor is built here and
// registered so server reflection can describe it.
func init() {
	fd, err := protodesc.NewFile(documentServiceFileProto(), protoregistry.GlobalFiles)
	if err != nil {
		panic("server: build " + documentServiceFile + ": " + err.Error())
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic("server: register " + documentServiceFile + ": " + err.Error())
	}
}

func documentServiceFileProto() *descriptorpb.FileDescriptorProto {
	var deps []string
	seen := map[string]bool{}
	addDep := func(m proto.Message) string {
		d := m.ProtoReflect().Descriptor()
		if path := d.ParentFile().Path(); !seen[path] {
			seen[path] = true
			deps = append(deps, path)
		}
		return "." + string(d.FullName())
	}

	methods := make([]*descriptorpb.MethodDescriptorProto, 0, len(documentMethodTypes))
	for _, m := range documentMethodTypes {
		methods = append(methods, &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(m.name),
			InputType:  proto.String(addDep(m.in)),
			OutputType: proto.String(addDep(m.out)),
		})
	}
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(documentServiceFile),
		Package:    proto.String("docprocessor.v1"),
		Syntax:     proto.String("proto3"),
		Dependency: deps,
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name:   proto.String("DocumentService"),
			Method: methods,
		}},
	}
}
