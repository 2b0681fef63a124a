// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package protocol

import "github.com/doorkeep/doorkeep/internal/transport"

// Events are local notification hooks raised by the handler after it has
// settled an operation. All fields are optional; registration happens once,
// at handler construction. Callbacks run on the connection's dispatch
// goroutine and must not block.
type Events struct {
	LoginSucceeded func(userID int32, conn transport.Conn)
	LoginFailed    func(conn transport.Conn)
	LoggedOut      func(userID int32, conn transport.Conn)
	UserAdded      func(userID int32, username string, conn transport.Conn)
	AddUserFailed  func(username string, conn transport.Conn)
}

func (e Events) loginSucceeded(userID int32, conn transport.Conn) {
	if e.LoginSucceeded != nil {
		e.LoginSucceeded(userID, conn)
	}
}

func (e Events) loginFailed(conn transport.Conn) {
	if e.LoginFailed != nil {
		e.LoginFailed(conn)
	}
}

func (e Events) loggedOut(userID int32, conn transport.Conn) {
	if e.LoggedOut != nil {
		e.LoggedOut(userID, conn)
	}
}

func (e Events) userAdded(userID int32, username string, conn transport.Conn) {
	if e.UserAdded != nil {
		e.UserAdded(userID, username, conn)
	}
}

func (e Events) addUserFailed(username string, conn transport.Conn) {
	if e.AddUserFailed != nil {
		e.AddUserFailed(username, conn)
	}
}
