// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package protocol

import "github.com/samber/oops"

// Subjects holds the numeric operation codes of the login protocol. The
// codes are deployment configuration, not protocol constants, but client
// and server must agree on them; there is no negotiation.
type Subjects struct {
	Login          uint16
	Logout         uint16
	AddUser        uint16
	LoginSuccess   uint16
	LoginFailed    uint16
	LogoutSuccess  uint16
	AddUserSuccess uint16
	AddUserFailed  uint16
}

// DefaultSubjects matches the reference mapping shipped with the original
// deployment settings.
func DefaultSubjects() Subjects {
	return Subjects{
		Login:          0,
		Logout:         1,
		AddUser:        2,
		LoginSuccess:   3,
		LoginFailed:    4,
		LogoutSuccess:  5,
		AddUserSuccess: 6,
		AddUserFailed:  7,
	}
}

// Validate checks that every subject code is distinct.
func (s Subjects) Validate() error {
	codes := map[uint16]string{}
	for _, c := range []struct {
		name string
		code uint16
	}{
		{"login", s.Login},
		{"logout", s.Logout},
		{"add_user", s.AddUser},
		{"login_success", s.LoginSuccess},
		{"login_failed", s.LoginFailed},
		{"logout_success", s.LogoutSuccess},
		{"add_user_success", s.AddUserSuccess},
		{"add_user_failed", s.AddUserFailed},
	} {
		if other, taken := codes[c.code]; taken {
			return oops.Code("PROTOCOL_SUBJECT_COLLISION").
				With("code", c.code).
				With("subjects", []string{other, c.name}).
				Errorf("subject code %d assigned to both %s and %s", c.code, other, c.name)
		}
		codes[c.code] = c.name
	}
	return nil
}
