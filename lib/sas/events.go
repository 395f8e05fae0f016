// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package sas

import "slices"

// To-device event types of the verification framework.
const (
	EventRequest = "m.key.verification.request"
	EventReady   = "m.key.verification.ready"
	EventStart   = "m.key.verification.start"
	EventAccept  = "m.key.verification.accept"
	EventKey     = "m.key.verification.key"
	EventMAC     = "m.key.verification.mac"
	EventDone    = "m.key.verification.done"
	EventCancel  = "m.key.verification.cancel"
)

// Cancellation codes this client sends.
const (
	CancelUser               = "m.user"
	CancelTimeout            = "m.timeout"
	CancelUnknownMethod      = "m.unknown_method"
	CancelUnexpectedMessage  = "m.unexpected_message"
	CancelKeyMismatch        = "m.key_mismatch"
	CancelMismatchedCommit   = "m.mismatched_commitment"
	CancelMismatchedSAS      = "m.mismatched_sas"
	CancelAccepted           = "m.accepted"
	CancelUnknownTransaction = "m.unknown_transaction"
)

// RequestContent is m.key.verification.request.
type RequestContent struct {
	FromDevice    string   `json:"from_device"`
	Methods       []string `json:"methods"`
	Timestamp     int64    `json:"timestamp"`
	TransactionID string   `json:"transaction_id"`
}

// ReadyContent is m.key.verification.ready.
type ReadyContent struct {
	FromDevice    string   `json:"from_device"`
	Methods       []string `json:"methods"`
	TransactionID string   `json:"transaction_id"`
}

// StartContent is m.key.verification.start for the m.sas.v1 method.
type StartContent struct {
	FromDevice                 string   `json:"from_device"`
	Method                     string   `json:"method"`
	KeyAgreementProtocols      []string `json:"key_agreement_protocols"`
	Hashes                     []string `json:"hashes"`
	MessageAuthenticationCodes []string `json:"message_authentication_codes"`
	ShortAuthenticationString  []string `json:"short_authentication_string"`
	TransactionID              string   `json:"transaction_id"`
}

// AcceptContent is m.key.verification.accept.
type AcceptContent struct {
	TransactionID             string   `json:"transaction_id"`
	Method                    string   `json:"method"`
	KeyAgreementProtocol      string   `json:"key_agreement_protocol"`
	Hash                      string   `json:"hash"`
	MessageAuthenticationCode string   `json:"message_authentication_code"`
	ShortAuthenticationString []string `json:"short_authentication_string"`
	Commitment                string   `json:"commitment"`
}

// KeyContent is m.key.verification.key.
type KeyContent struct {
	TransactionID string `json:"transaction_id"`
	Key           string `json:"key"`
}

// MACContent is m.key.verification.mac.
type MACContent struct {
	TransactionID string            `json:"transaction_id"`
	MAC           map[string]string `json:"mac"`
	Keys          string            `json:"keys"`
}

// DoneContent is m.key.verification.done.
type DoneContent struct {
	TransactionID string `json:"transaction_id"`
}

// CancelContent is m.key.verification.cancel.
type CancelContent struct {
	TransactionID string `json:"transaction_id"`
	Code          string `json:"code"`
	Reason        string `json:"reason"`
}

// NewStart returns the start content this client offers.
func NewStart(fromDevice, transactionID string) StartContent {
	return StartContent{
		FromDevice:                 fromDevice,
		Method:                     Method,
		KeyAgreementProtocols:      []string{KeyAgreementProtocol},
		Hashes:                     []string{HashAlgorithm},
		MessageAuthenticationCodes: []string{MACMethod},
		ShortAuthenticationString:  []string{RenderingDecimal, RenderingEmoji},
		TransactionID:              transactionID,
	}
}

// NegotiateAccept checks that start offers the algorithms this client
// implements and returns the matching accept content, minus the
// commitment. ok is false when there is no common choice, in which case
// the caller cancels with CancelUnknownMethod.
func NegotiateAccept(start StartContent) (accept AcceptContent, ok bool) {
	if start.Method != Method ||
		!slices.Contains(start.KeyAgreementProtocols, KeyAgreementProtocol) ||
		!slices.Contains(start.Hashes, HashAlgorithm) ||
		!slices.Contains(start.MessageAuthenticationCodes, MACMethod) ||
		!slices.Contains(start.ShortAuthenticationString, RenderingEmoji) {
		return AcceptContent{}, false
	}
	renderings := []string{RenderingEmoji}
	if slices.Contains(start.ShortAuthenticationString, RenderingDecimal) {
		renderings = []string{RenderingDecimal, RenderingEmoji}
	}
	return AcceptContent{
		TransactionID:             start.TransactionID,
		Method:                    Method,
		KeyAgreementProtocol:      KeyAgreementProtocol,
		Hash:                      HashAlgorithm,
		MessageAuthenticationCode: MACMethod,
		ShortAuthenticationString: renderings,
	}, true
}

// AcceptIsCompatible reports whether an accept received for our start
// picked algorithms we offered.
func AcceptIsCompatible(accept AcceptContent) bool {
	return accept.Method == Method &&
		accept.KeyAgreementProtocol == KeyAgreementProtocol &&
		accept.Hash == HashAlgorithm &&
		accept.MessageAuthenticationCode == MACMethod &&
		slices.Contains(accept.ShortAuthenticationString, RenderingEmoji)
}
