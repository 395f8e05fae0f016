// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	"github.com/halyard-chat/halyard/desk"
	"github.com/halyard-chat/halyard/lib/codec"
	"github.com/halyard-chat/halyard/lib/schema"
	"github.com/halyard-chat/halyard/lib/secret"
	"github.com/halyard-chat/halyard/lib/service"
	"github.com/halyard-chat/halyard/lib/version"
)

func (d *Daemon) registerActions(server *service.SocketServer) {
	server.Handle(schema.ActionStatus, d.handleStatus)

	server.Handle(schema.ActionLogin, d.handleLogin)
	server.Handle(schema.ActionCheckSession, d.handleCheckSession)
	server.Handle(schema.ActionLogout, d.handleLogout)
	server.Handle(schema.ActionSync, d.handleSync)

	server.Handle(schema.ActionListRooms, d.handleListRooms)
	server.Handle(schema.ActionFetchMessages, d.handleFetchMessages)
	server.Handle(schema.ActionSendMessage, d.handleSendMessage)

	server.Handle(schema.ActionCheckVerificationStatus, d.handleCheckVerificationStatus)
	server.Handle(schema.ActionRequestVerification, d.handleRequestVerification)
	server.Handle(schema.ActionGetVerificationEmoji, d.handleGetVerificationEmoji)
	server.Handle(schema.ActionConfirmVerification, d.handleConfirmVerification)
	server.Handle(schema.ActionCancelVerification, d.handleCancelVerification)
	server.Handle(schema.ActionVerifyWithRecoveryKey, d.handleVerifyWithRecoveryKey)
}

// wireError puts a session error on the socket as "<Kind>: <text>".
type wireError struct {
	err error
}

func (e *wireError) Error() string { return desk.WireMessage(e.err) }

func (e *wireError) Unwrap() error { return e.err }

func toWire(err error) error {
	if err == nil {
		return nil
	}
	return &wireError{err: err}
}

// decodeRequest decodes raw into request. A malformed request is the
// caller's input error.
func decodeRequest(raw []byte, request any) error {
	if err := codec.Unmarshal(raw, request); err != nil {
		return toWire(&desk.Error{Kind: desk.InvalidInput, Message: "Malformed request", Err: err})
	}
	return nil
}

// protect moves a secret request field into a secret.Buffer and zeroes
// the field. An empty field yields nil, which the session layer
// reports as missing input.
func protect(field []byte) (*secret.Buffer, error) {
	if len(field) == 0 {
		return nil, nil
	}
	return secret.NewFromBytes(field)
}

func sessionStatus(info desk.SessionInfo, loggedIn bool) schema.SessionStatus {
	if !loggedIn {
		return schema.SessionStatus{}
	}
	return schema.SessionStatus{
		LoggedIn:      true,
		UserID:        info.UserID.String(),
		DeviceID:      info.DeviceID.String(),
		HomeserverURL: info.HomeserverURL,
	}
}

func (d *Daemon) handleStatus(ctx context.Context, raw []byte) (any, error) {
	return schema.DaemonStatus{
		Build:         version.Current(),
		UptimeSeconds: d.clock.Now().Sub(d.startedAt).Seconds(),
		Session:       sessionStatus(d.desk.Session()),
		LastSync:      d.lastSync.Load(),
	}, nil
}

func (d *Daemon) handleLogin(ctx context.Context, raw []byte) (any, error) {
	var request schema.LoginRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	password, err := protect(request.Password)
	if err != nil {
		return nil, err
	}
	if password != nil {
		defer password.Close()
	}

	d.logger.Info("login requested", "homeserver", request.HomeserverURL)
	info, err := d.desk.Login(ctx, request.HomeserverURL, request.Username, password)
	if err != nil {
		return nil, toWire(err)
	}
	d.lastSync.Store(d.clock.Now().UnixMilli())
	return sessionStatus(info, true), nil
}

func (d *Daemon) handleCheckSession(ctx context.Context, raw []byte) (any, error) {
	return sessionStatus(d.desk.Session()), nil
}

func (d *Daemon) handleLogout(ctx context.Context, raw []byte) (any, error) {
	err := d.desk.Logout(ctx)
	d.lastSync.Store(0)
	return nil, toWire(err)
}

func (d *Daemon) handleSync(ctx context.Context, raw []byte) (any, error) {
	if err := d.desk.Sync(ctx); err != nil {
		return nil, toWire(err)
	}
	d.lastSync.Store(d.clock.Now().UnixMilli())
	return nil, nil
}

func (d *Daemon) handleListRooms(ctx context.Context, raw []byte) (any, error) {
	rooms, err := d.desk.ListRooms(ctx)
	if err != nil {
		return nil, toWire(err)
	}
	list := schema.RoomList{Rooms: make([]schema.Room, 0, len(rooms))}
	for _, room := range rooms {
		list.Rooms = append(list.Rooms, schema.Room{RoomID: room.RoomID, Name: room.Name, Topic: room.Topic})
	}
	return list, nil
}

func (d *Daemon) handleFetchMessages(ctx context.Context, raw []byte) (any, error) {
	var request schema.FetchMessagesRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}

	var page desk.MessagePage
	var err error
	if request.Older {
		page, err = d.desk.FetchOlderMessages(ctx, request.Room, request.PageSize)
	} else {
		page, err = d.desk.FetchMessages(ctx, request.Room, request.PageSize, request.From)
	}
	if err != nil {
		return nil, toWire(err)
	}

	response := schema.MessagePage{
		Messages:   make([]schema.Message, 0, len(page.Messages)),
		HasMore:    page.HasMore,
		NextCursor: page.NextCursor,
	}
	for _, message := range page.Messages {
		response.Messages = append(response.Messages, schema.Message{
			EventID:   message.EventID,
			Sender:    message.Sender,
			Body:      message.Body,
			Timestamp: message.Timestamp,
		})
	}
	return response, nil
}

func (d *Daemon) handleSendMessage(ctx context.Context, raw []byte) (any, error) {
	var request schema.SendMessageRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	eventID, err := d.desk.SendMessage(ctx, request.Room, request.Body)
	if err != nil {
		return nil, toWire(err)
	}
	return schema.SendMessageResponse{EventID: eventID.String()}, nil
}

func (d *Daemon) handleCheckVerificationStatus(ctx context.Context, raw []byte) (any, error) {
	status, err := d.desk.CheckVerificationStatus(ctx)
	if err != nil {
		return nil, toWire(err)
	}
	flowID, state := d.desk.Verification()
	return schema.VerificationStatus{
		NeedsVerification: status.NeedsVerification,
		IsVerified:        status.IsVerified,
		FlowID:            flowID,
		FlowState:         state.String(),
	}, nil
}

func (d *Daemon) handleRequestVerification(ctx context.Context, raw []byte) (any, error) {
	device, err := d.desk.RequestVerification(ctx)
	if err != nil {
		return nil, toWire(err)
	}
	return schema.VerificationRequested{
		DeviceID:    device.DeviceID.String(),
		DisplayName: device.DisplayName,
	}, nil
}

func (d *Daemon) handleGetVerificationEmoji(ctx context.Context, raw []byte) (any, error) {
	emoji, err := d.desk.GetVerificationEmoji(ctx)
	if err != nil {
		return nil, toWire(err)
	}
	list := schema.EmojiList{Emoji: make([]schema.Emoji, 0, len(emoji))}
	for _, e := range emoji {
		list.Emoji = append(list.Emoji, schema.Emoji{Symbol: e.Symbol, Description: e.Description})
	}
	return list, nil
}

func (d *Daemon) handleConfirmVerification(ctx context.Context, raw []byte) (any, error) {
	verified, err := d.desk.ConfirmVerification(ctx)
	if err != nil {
		return nil, toWire(err)
	}
	return schema.VerificationConfirmed{Verified: verified}, nil
}

func (d *Daemon) handleCancelVerification(ctx context.Context, raw []byte) (any, error) {
	return nil, toWire(d.desk.CancelVerification(ctx))
}

func (d *Daemon) handleVerifyWithRecoveryKey(ctx context.Context, raw []byte) (any, error) {
	var request schema.RecoveryKeyRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	recoveryKey, err := protect(request.RecoveryKey)
	if err != nil {
		return nil, err
	}
	if recoveryKey != nil {
		defer recoveryKey.Close()
	}
	return nil, toWire(d.desk.VerifyWithRecoveryKey(ctx, recoveryKey))
}
