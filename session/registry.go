// Package session keeps the single live connection of every logged-in user.
package session

import (
	"context"
	"errors"
	"sync"

	"arenaserver/models"

	log "github.com/sirupsen/logrus"
)

// ReasonNewLogin is sent to a connection evicted by a newer login of the same user
const ReasonNewLogin = "terminated by new login"

// ErrConnBound rejects a connection that tries to log in as a second user
var ErrConnBound = errors.New("connection is already bound to another user")

// Credential is what a client presents in user_connect
type Credential struct {
	UserID int64  `json:"userId"`
	Token  string `json:"token"`
}

// Authenticator resolves a credential to a user
type Authenticator interface {
	Authenticate(ctx context.Context, cred Credential) (*models.User, error)
}

// Conn is a live client connection as seen by the registry
type Conn interface {
	ID() string
	// Terminate notifies the client, drops its room subscriptions and closes it.
	// It must not call back into the Registry.
	Terminate(reason string)
}

// Registry maps users to their one canonical connection
type Registry struct {
	auth Authenticator

	mu     sync.Mutex
	byUser map[int64]Conn
	byConn map[string]int64
}

func NewRegistry(auth Authenticator) *Registry {
	return &Registry{
		auth:   auth,
		byUser: make(map[int64]Conn),
		byConn: make(map[string]int64),
	}
}

// Authenticate verifies the credential and returns the user behind it
func (r *Registry) Authenticate(ctx context.Context, cred Credential) (*models.User, error) {
	return r.auth.Authenticate(ctx, cred)
}

// Register installs conn as the canonical connection of userID. Any previous
// connection of the same user is terminated before the new mapping exists.
// A connection keeps the user it first registered as.
func (r *Registry) Register(userID int64, conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if bound, ok := r.byConn[conn.ID()]; ok && bound != userID {
		return ErrConnBound
	}

	if prior, ok := r.byUser[userID]; ok && prior.ID() != conn.ID() {
		delete(r.byConn, prior.ID())
		delete(r.byUser, userID)
		prior.Terminate(ReasonNewLogin)

		log.WithFields(log.Fields{
			"userID":      userID,
			"evictedConn": prior.ID(),
			"newConn":     conn.ID(),
		}).Info("Evicted previous session")
	}

	r.byUser[userID] = conn
	r.byConn[conn.ID()] = userID
	return nil
}

// Teardown forgets conn and reports whether it was still the canonical
// connection of its user. Only a canonical teardown should leave rooms.
func (r *Registry) Teardown(conn Conn) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[conn.ID()]
	if !ok {
		return 0, false
	}
	delete(r.byConn, conn.ID())

	current, ok := r.byUser[userID]
	if !ok || current.ID() != conn.ID() {
		return userID, false
	}
	delete(r.byUser, userID)
	return userID, true
}

// Kick force-closes the user's connection, if any
func (r *Registry) Kick(userID int64, reason string) bool {
	r.mu.Lock()
	conn, ok := r.byUser[userID]
	if ok {
		delete(r.byUser, userID)
		delete(r.byConn, conn.ID())
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	conn.Terminate(reason)
	log.WithFields(log.Fields{
		"userID": userID,
		"reason": reason,
	}).Info("Kicked user session")
	return true
}

// UserFor returns the user bound to a connection id
func (r *Registry) UserFor(connID string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byConn[connID]
	return userID, ok
}

// Conn returns the canonical connection of a user
func (r *Registry) Conn(userID int64) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.byUser[userID]
	return conn, ok
}

// Count returns the number of live sessions
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}

// CloseAll terminates every live session
func (r *Registry) CloseAll(reason string) int {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.byUser))
	for _, conn := range r.byUser {
		conns = append(conns, conn)
	}
	r.byUser = make(map[int64]Conn)
	r.byConn = make(map[string]int64)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Terminate(reason)
	}
	return len(conns)
}
