package reportwire

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Code classifies a tracker response to a batch.
type Code string

// Response codes.
const (
	CodeOK                Code = "OK"
	CodeResourceExhausted Code = "RESOURCE_EXHAUSTED"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeInternal          Code = "INTERNAL"
)

// Response is sent by the tracker for a batch it could not take as-is.
type Response struct {
	BatchID    int64
	Code       Code
	Message    string
	RetryAfter time.Duration
	Accepted   int
	Rejected   int
}

// EncodeResponse converts a response into its wire form.
func EncodeResponse(r Response) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldBatchID:   structpb.NewNumberValue(float64(r.BatchID)),
		"code":         structpb.NewStringValue(string(r.Code)),
		"message":      structpb.NewStringValue(r.Message),
		"retryAfterMs": structpb.NewNumberValue(float64(r.RetryAfter.Milliseconds())),
		"accepted":     structpb.NewNumberValue(float64(r.Accepted)),
		"rejected":     structpb.NewNumberValue(float64(r.Rejected)),
	}}
}

// DecodeResponse reads a response. Missing fields decode to zero values.
func DecodeResponse(s *structpb.Struct) Response {
	fields := s.GetFields()
	return Response{
		BatchID:    int64(fields[FieldBatchID].GetNumberValue()),
		Code:       Code(fields["code"].GetStringValue()),
		Message:    fields["message"].GetStringValue(),
		RetryAfter: time.Duration(fields["retryAfterMs"].GetNumberValue()) * time.Millisecond,
		Accepted:   int(fields["accepted"].GetNumberValue()),
		Rejected:   int(fields["rejected"].GetNumberValue()),
	}
}
