// Package cmn provides shared low-level types, configuration, and error
// helpers used across the caching proxy core.
/*
 * Copyright (c) 2024
 */
package cmn

import (
	"fmt"
)

// Assert panics if cond is false. Used for invariants that must never be
// false in a correct build (in this module: pipeline END exclusivity in
// filter/vdp.go).
func Assert(cond bool) {
	if !cond {
		panic("assertion failed")
	}
}

// AssertMsg panics with msg if cond is false.
func AssertMsg(cond bool, msg string) {
	if !cond {
		panic("assertion failed: " + msg)
	}
}

// AssertNoErr panics if err is non-nil. Reserved for paths that the core
// considers unreachable absent a programming error (e.g. a workspace
// snapshot token minted by this same task failing to parse).
func AssertNoErr(err error) {
	if err != nil {
		panic("unexpected error: " + err.Error())
	}
}

// HTTPError is an error annotated with the HTTP status code the client (or
// backend, or policy hook) associated with it. Neither the synthetic
// response path nor the admin CLI in this module uses it.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func NewHTTPError(status int, format string, a ...interface{}) *HTTPError {
	return &HTTPError{Status: status, Message: fmt.Sprintf(format, a...)}
}

// CloseReason is the internal stream-close-reason enum from spec §6.
type CloseReason int

const (
	ReasonNull CloseReason = iota
	ReasonRemClose
	ReasonReqClose
	ReasonReqHTTP10
	ReasonRxBad
	ReasonRxBody
	ReasonRxJunk
	ReasonRxOverflow
	ReasonRxTimeout
	ReasonTxPipe
	ReasonTxError
	ReasonTxEOF
	ReasonRespClose
	ReasonOverload
	ReasonPipeOverflow
	ReasonRangeShort
	ReasonReqHTTP20
	ReasonVCLFailure
	ReasonRapidReset
	ReasonTrafficRefuse
)

var closeReasonText = map[CloseReason]string{
	ReasonNull:          "",
	ReasonRemClose:      "remote closed",
	ReasonReqClose:      "client requested close",
	ReasonReqHTTP10:     "HTTP/1.0 client, no keep-alive",
	ReasonRxBad:         "bad request received",
	ReasonRxBody:        "error receiving request body",
	ReasonRxJunk:        "junk received where request expected",
	ReasonRxOverflow:    "receive buffer overflow",
	ReasonRxTimeout:     "receive timeout",
	ReasonTxPipe:        "piped connection closed",
	ReasonTxError:       "error transmitting response",
	ReasonTxEOF:         "remote closed during transmit",
	ReasonRespClose:     "backend response requested close",
	ReasonOverload:      "resources exhausted (pipeline overload)",
	ReasonPipeOverflow:  "pipe buffer overflow",
	ReasonRangeShort:    "range response ended short of requested range",
	ReasonReqHTTP20:     "HTTP/2 request",
	ReasonVCLFailure:    "policy (vcl) failure",
	ReasonRapidReset:    "rapid stream reset",
	ReasonTrafficRefuse: "traffic refused",
}

func (r CloseReason) String() string {
	if s, ok := closeReasonText[r]; ok {
		return s
	}
	return "unknown"
}
