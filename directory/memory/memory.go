// Package memory provides an in-process goAccess.UserDirectory for tests,
// demos and single-node development servers.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	goAccess "github.com/MrEthical07/goAccess"
)

// Directory is a goAccess.UserDirectory backed by maps. Usernames and emails
// are unique case-insensitively.
type Directory struct {
	mu         sync.RWMutex
	nextID     int64
	byID       map[int64]goAccess.Account
	byUsername map[string]int64
	byEmail    map[string]int64
	now        func() time.Time
}

// New returns an empty Directory.
func New() *Directory {
	return &Directory{
		nextID:     1,
		byID:       map[int64]goAccess.Account{},
		byUsername: map[string]int64{},
		byEmail:    map[string]int64{},
		now:        time.Now,
	}
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FindByID returns the account with id or goAccess.ErrAccountNotFound.
func (d *Directory) FindByID(_ context.Context, id int64) (goAccess.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.byID[id]
	if !ok {
		return goAccess.Account{}, goAccess.ErrAccountNotFound
	}
	return a, nil
}

// FindByUsername looks username up case-insensitively.
func (d *Directory) FindByUsername(_ context.Context, username string) (goAccess.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byUsername[fold(username)]
	if !ok {
		return goAccess.Account{}, goAccess.ErrAccountNotFound
	}
	return d.byID[id], nil
}

// FindByEmail looks email up case-insensitively.
func (d *Directory) FindByEmail(_ context.Context, email string) (goAccess.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[fold(email)]
	if !ok {
		return goAccess.Account{}, goAccess.ErrAccountNotFound
	}
	return d.byID[id], nil
}

// Create assigns the next ID. A zero CreatedAt is set to the current time.
func (d *Directory) Create(_ context.Context, account goAccess.Account) (goAccess.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byUsername[fold(account.Username)]; ok {
		return goAccess.Account{}, goAccess.ErrUsernameTaken
	}
	if _, ok := d.byEmail[fold(account.Email)]; ok {
		return goAccess.Account{}, goAccess.ErrEmailTaken
	}

	account.ID = d.nextID
	d.nextID++
	if account.CreatedAt.IsZero() {
		account.CreatedAt = d.now().UTC()
	}

	d.byID[account.ID] = account
	d.byUsername[fold(account.Username)] = account.ID
	d.byEmail[fold(account.Email)] = account.ID
	return account, nil
}

// Save replaces the username, email and password hash of an existing
// account. CreatedAt and Confirmed keep their stored values.
func (d *Directory) Save(_ context.Context, account goAccess.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, ok := d.byID[account.ID]
	if !ok {
		return goAccess.ErrAccountNotFound
	}
	if id, ok := d.byUsername[fold(account.Username)]; ok && id != account.ID {
		return goAccess.ErrUsernameTaken
	}
	if id, ok := d.byEmail[fold(account.Email)]; ok && id != account.ID {
		return goAccess.ErrEmailTaken
	}

	delete(d.byUsername, fold(prev.Username))
	delete(d.byEmail, fold(prev.Email))
	account.CreatedAt = prev.CreatedAt
	account.Confirmed = prev.Confirmed
	d.byID[account.ID] = account
	d.byUsername[fold(account.Username)] = account.ID
	d.byEmail[fold(account.Email)] = account.ID
	return nil
}

// ConfirmAccount sets Confirmed and reports whether it was previously unset.
func (d *Directory) ConfirmAccount(_ context.Context, id int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.byID[id]
	if !ok {
		return false, goAccess.ErrAccountNotFound
	}
	if a.Confirmed {
		return false, nil
	}
	a.Confirmed = true
	d.byID[id] = a
	return true, nil
}

// Len returns the number of stored accounts.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}
