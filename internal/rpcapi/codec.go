package rpcapi

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/apperror"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/realtime"
)

// String returns in[key] when it holds a string.
func String(in *structpb.Struct, key string) string {
	v, ok := in.GetFields()[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// Int returns in[key] as an int. Numbers are truncated; numeric strings are not accepted.
func Int(in *structpb.Struct, key string) int {
	v, ok := in.GetFields()[key]
	if !ok {
		return 0
	}
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
		return 0
	}
	return int(v.GetNumberValue())
}

// FrameToStruct converts a live frame for the Live stream.
func FrameToStruct(f realtime.Frame) (*structpb.Struct, error) {
	m := map[string]any{"event": f.Event}
	if f.Ref != "" {
		m["ref"] = f.Ref
	}
	if f.Data != nil {
		m["data"] = f.Data
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode frame %s: %w", f.Event, err)
	}
	return s, nil
}

// StructToFrame reads a live frame from the Live stream.
func StructToFrame(s *structpb.Struct) (realtime.Frame, error) {
	f := realtime.Frame{
		Event: String(s, "event"),
		Ref:   String(s, "ref"),
	}
	if f.Event == "" {
		return realtime.Frame{}, errors.New("frame has no event")
	}
	if d := s.GetFields()["data"].GetStructValue(); d != nil {
		f.Data = d.AsMap()
	}
	return f, nil
}

// Status maps an application error onto a gRPC status. Internal errors are masked.
func Status(err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch apperror.KindOf(err) {
	case apperror.KindNotFound:
		code = codes.NotFound
	case apperror.KindUnauthorized:
		code = codes.PermissionDenied
	case apperror.KindValidation:
		code = codes.InvalidArgument
	case apperror.KindConflict:
		code = codes.AlreadyExists
	default:
		code = codes.Internal
	}
	return status.Error(code, apperror.PublicMessage(err))
}
