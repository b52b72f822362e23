//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package domain

import (
	grpcCodes "google.golang.org/grpc/codes"
	grpcStatus "google.golang.org/grpc/status"
)

// Error-kind helpers. The registries never invent their own error type;
// like state/containerDB.go does, they return grpc canonical-code statuses
// even though nothing here is ever carried over an RPC. The control-channel
// server (ctl/) is the only place that translates a *status.Status back
// down to the one-byte wire status of spec.md §6.

func ErrNotFound(format string, args ...interface{}) error {
	return grpcStatus.Errorf(grpcCodes.NotFound, format, args...)
}

func ErrAlreadyExists(format string, args ...interface{}) error {
	return grpcStatus.Errorf(grpcCodes.AlreadyExists, format, args...)
}

func ErrInvalidArgument(format string, args ...interface{}) error {
	return grpcStatus.Errorf(grpcCodes.InvalidArgument, format, args...)
}

func ErrBusy(format string, args ...interface{}) error {
	return grpcStatus.Errorf(grpcCodes.FailedPrecondition, format, args...)
}

func ErrNoMemory(format string, args ...interface{}) error {
	return grpcStatus.Errorf(grpcCodes.ResourceExhausted, format, args...)
}

func ErrResourceExhausted(format string, args ...interface{}) error {
	return grpcStatus.Errorf(grpcCodes.Unavailable, format, args...)
}

func ErrFault(format string, args ...interface{}) error {
	return grpcStatus.Errorf(grpcCodes.DataLoss, format, args...)
}

func ErrUnknownOp(format string, args ...interface{}) error {
	return grpcStatus.Errorf(grpcCodes.Unimplemented, format, args...)
}

// Code extracts the grpc canonical code carried by err, defaulting to
// codes.Unknown for an error that didn't originate from the helpers above.
func Code(err error) grpcCodes.Code {
	if err == nil {
		return grpcCodes.OK
	}
	st, ok := grpcStatus.FromError(err)
	if !ok {
		return grpcCodes.Unknown
	}
	return st.Code()
}

// WireStatusTruncatedBit is OR'd into an otherwise-OK wire status by
// vars.list_containers when one or more container names were dropped to
// fit the 4096-byte out-buffer (SPEC_FULL.md §9(a)). It turns a spec.md §6
// reserved bit into a meaningful one rather than failing the call or
// silently dropping names — this repo's "no silent caps" rule.
const WireStatusTruncatedBit byte = 0x80

// WireStatus maps a grpc canonical code to the one-byte wire status defined
// in SPEC_FULL.md §7. Unknown codes map to 'fault' rather than panicking —
// the control channel must always produce a well-formed reply.
func WireStatus(c grpcCodes.Code) byte {
	switch c {
	case grpcCodes.OK:
		return 0
	case grpcCodes.NotFound:
		return 1
	case grpcCodes.AlreadyExists:
		return 2
	case grpcCodes.InvalidArgument:
		return 3
	case grpcCodes.FailedPrecondition:
		return 4
	case grpcCodes.ResourceExhausted:
		return 5
	case grpcCodes.Unavailable:
		return 6
	case grpcCodes.DataLoss:
		return 7
	case grpcCodes.Unimplemented:
		return 8
	default:
		return 7
	}
}
