// Package directory keeps the process's known users in memory.
package directory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/multichannel/internal/messaging"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrNoAddress    = errors.New("user has no address for channel")
)

type Memory struct {
	logger zerolog.Logger
	newID  func() string

	mu    sync.RWMutex
	users map[string]*messaging.User
}

func NewMemory(logger zerolog.Logger) *Memory {
	return &Memory{
		logger: logger,
		newID:  uuid.NewString,
		users:  make(map[string]*messaging.User),
	}
}

func (d *Memory) Create(name, email, phone string) *messaging.User {
	u := messaging.NewUser(d.newID(), name, email, phone).WithLogger(d.logger)
	d.mu.Lock()
	d.users[u.ID()] = u
	d.mu.Unlock()
	return u
}

func (d *Memory) Lookup(id string) (*messaging.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	return u, nil
}

// Address returns the contact a transport should use to reach id on v:
// the email address for email, the phone number otherwise.
func (d *Memory) Address(v messaging.Variant, id string) (string, error) {
	u, err := d.Lookup(id)
	if err != nil {
		return "", err
	}
	addr := u.Phone
	if v == messaging.VariantEmail {
		addr = u.Email
	}
	if addr == "" {
		return "", fmt.Errorf("%w: %s on %s", ErrNoAddress, id, v)
	}
	return addr, nil
}
