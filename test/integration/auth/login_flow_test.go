// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

//go:build integration

package auth_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/doorkeep/doorkeep/internal/auth"
	"github.com/doorkeep/doorkeep/internal/client"
	"github.com/doorkeep/doorkeep/internal/protocol"
	"github.com/doorkeep/doorkeep/internal/transport"
)

// inMemoryUserStore is a map-backed auth.UserStore. It simulates database
// persistence, including the exactly-one-match login rule and the unique
// (username, hash) constraint, without requiring PostgreSQL.
type inMemoryUserStore struct {
	mu     sync.Mutex
	nextID int32
	users  []userRow
}

type userRow struct {
	id       int32
	username string
	hash     string
}

func newInMemoryUserStore() *inMemoryUserStore {
	return &inMemoryUserStore{nextID: 1}
}

func (s *inMemoryUserStore) FindIDByCredentials(_ context.Context, username, hash string) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int32
	for _, u := range s.users {
		if u.username == username && u.hash == hash {
			ids = append(ids, u.id)
		}
	}
	if len(ids) != 1 {
		return 0, auth.ErrNotFound
	}
	return ids[0], nil
}

func (s *inMemoryUserStore) ExistsByCredentials(_ context.Context, username, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.username == username && u.hash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (s *inMemoryUserStore) Insert(_ context.Context, username, hash string) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.username == username && u.hash == hash {
			return 0, auth.ErrDuplicate
		}
	}
	id := s.nextID
	s.nextID++
	s.users = append(s.users, userRow{id: id, username: username, hash: hash})
	return id, nil
}

// notifications collects client event callbacks in order.
type notifications struct {
	mu     sync.Mutex
	events []string
}

func (n *notifications) add(event string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *notifications) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func (n *notifications) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return ""
	}
	return n.events[len(n.events)-1]
}

var _ = Describe("Login flow", func() {
	var (
		store   *inMemoryUserStore
		handler *protocol.Handler
		pipe    *transport.Pipe
		facade  *client.Facade
		notes   *notifications
	)

	newFacade := func() (*transport.Pipe, *client.Facade) {
		p := transport.NewPipe(context.Background(), handler)
		f, err := client.New(p, 1, protocol.DefaultSubjects(), auth.AlgorithmMD5,
			client.WithEvents(client.Events{
				LoginSucceeded: func(int32) { notes.add("login_succeeded") },
				LoginFailed:    func() { notes.add("login_failed") },
				LoggedOut:      func() { notes.add("logged_out") },
				UserAdded:      func(int32) { notes.add("user_added") },
				AddUserFailed:  func() { notes.add("add_user_failed") },
			}),
		)
		Expect(err).NotTo(HaveOccurred())
		return p, f
	}

	BeforeEach(func() {
		store = newInMemoryUserStore()
		notes = &notifications{}

		var err error
		handler, err = protocol.NewHandler(protocol.Config{
			Tag:                           1,
			Subjects:                      protocol.DefaultSubjects(),
			AllowAddUser:                  true,
			AllowAddUserWhenAuthenticated: true,
		}, store)
		Expect(err).NotTo(HaveOccurred())

		pipe, facade = newFacade()
	})

	AfterEach(func() {
		Expect(pipe.Close()).To(Succeed())
	})

	It("registers, logs out, and logs back in", func() {
		Expect(facade.AddUser("alice", "password")).To(Succeed())
		Expect(notes.last()).To(Equal("user_added"))
		Expect(facade.IsLoggedIn()).To(BeTrue())
		registeredID := facade.UserID()

		Expect(facade.Logout()).To(Succeed())
		Expect(notes.last()).To(Equal("logged_out"))
		Expect(facade.IsLoggedIn()).To(BeFalse())

		Expect(facade.Login("alice", "password")).To(Succeed())
		Expect(notes.last()).To(Equal("login_succeeded"))
		Expect(facade.IsLoggedIn()).To(BeTrue())
		Expect(facade.UserID()).To(Equal(registeredID))
	})

	It("rejects a login with the wrong password", func() {
		Expect(facade.AddUser("alice", "password")).To(Succeed())
		Expect(facade.Logout()).To(Succeed())

		Expect(facade.Login("alice", "wrong")).To(Succeed())
		Expect(notes.last()).To(Equal("login_failed"))
		Expect(facade.IsLoggedIn()).To(BeFalse())
	})

	It("rejects a duplicate registration", func() {
		Expect(facade.AddUser("alice", "password")).To(Succeed())
		Expect(facade.Logout()).To(Succeed())

		Expect(facade.AddUser("alice", "password")).To(Succeed())
		Expect(notes.last()).To(Equal("add_user_failed"))
	})

	It("allows the same username with a different password", func() {
		Expect(facade.AddUser("alice", "password")).To(Succeed())
		Expect(facade.Logout()).To(Succeed())

		Expect(facade.AddUser("alice", "different")).To(Succeed())
		Expect(notes.last()).To(Equal("user_added"))
	})

	It("rejects a second login on an authenticated connection", func() {
		Expect(facade.AddUser("alice", "password")).To(Succeed())
		firstID := facade.UserID()

		Expect(facade.Login("alice", "password")).To(Succeed())
		Expect(notes.last()).To(Equal("login_failed"))

		// The server-side identity is untouched.
		sess, ok := handler.Session(pipe.ServerConn().ID())
		Expect(ok).To(BeTrue())
		Expect(sess.Authenticated).To(BeTrue())
		Expect(sess.UserID).To(Equal(firstID))
	})

	It("always honors logout, even when anonymous", func() {
		Expect(facade.Logout()).To(Succeed())
		Expect(notes.last()).To(Equal("logged_out"))
		Expect(facade.IsLoggedIn()).To(BeFalse())
	})

	It("drops requests with empty credentials before they reach the server", func() {
		Expect(facade.Login("", "password")).To(Succeed())
		Expect(facade.Login("alice", "")).To(Succeed())
		Expect(facade.AddUser("", "password")).To(Succeed())

		Expect(notes.all()).To(BeEmpty())
	})

	It("isolates sessions between connections", func() {
		Expect(facade.AddUser("alice", "password")).To(Succeed())

		pipe2, facade2 := newFacade()
		defer func() { _ = pipe2.Close() }()

		Expect(facade2.IsLoggedIn()).To(BeFalse())

		Expect(facade2.Login("alice", "password")).To(Succeed())
		Expect(facade2.IsLoggedIn()).To(BeTrue())

		sess1, _ := handler.Session(pipe.ServerConn().ID())
		sess2, _ := handler.Session(pipe2.ServerConn().ID())
		Expect(sess1.UserID).To(Equal(sess2.UserID))
	})

	It("forgets the session on disconnect", func() {
		Expect(facade.AddUser("alice", "password")).To(Succeed())
		connID := pipe.ServerConn().ID()

		Expect(pipe.Close()).To(Succeed())

		_, ok := handler.Session(connID)
		Expect(ok).To(BeFalse())

		// Re-open so AfterEach's close is a no-op on an already closed pipe.
		pipe, facade = newFacade()
	})

	Context("with account creation disabled", func() {
		BeforeEach(func() {
			var err error
			handler, err = protocol.NewHandler(protocol.Config{
				Tag:          1,
				Subjects:     protocol.DefaultSubjects(),
				AllowAddUser: false,
			}, store)
			Expect(err).NotTo(HaveOccurred())

			pipe, facade = newFacade()
		})

		It("fails registration without touching the store", func() {
			Expect(facade.AddUser("alice", "password")).To(Succeed())
			Expect(notes.last()).To(Equal("add_user_failed"))

			exists, err := store.ExistsByCredentials(context.Background(), "alice", "anything")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())
		})
	})

	Context("with registration barred for authenticated connections", func() {
		BeforeEach(func() {
			var err error
			handler, err = protocol.NewHandler(protocol.Config{
				Tag:          1,
				Subjects:     protocol.DefaultSubjects(),
				AllowAddUser: true,
			}, store)
			Expect(err).NotTo(HaveOccurred())

			pipe, facade = newFacade()
		})

		It("rejects a second registration on the same connection", func() {
			Expect(facade.AddUser("alice", "password")).To(Succeed())
			Expect(notes.last()).To(Equal("user_added"))

			Expect(facade.AddUser("bob", "password")).To(Succeed())
			Expect(notes.last()).To(Equal("add_user_failed"))
		})
	})
})
