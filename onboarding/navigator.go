package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Route names a screen.
type Route string

const (
	RouteOnboarding     Route = "onboarding"
	RoutePrivacyConsent Route = "privacy_consent"
	RouteLogin          Route = "login"
)

// ErrWrongRoute is returned when a transition is requested from a screen that
// does not offer it.
var ErrWrongRoute = errors.New("onboarding: transition not available on current route")

// FlagStore persists whether onboarding was completed.
type FlagStore interface {
	IsCompleted(ctx context.Context) (bool, error)
	SetCompleted(ctx context.Context, completed bool) error
}

// Presenter shows the phone verification modal. *phoneauth.Controller
// satisfies it.
type Presenter interface {
	Show()
}

// Navigator owns the current route.
type Navigator struct {
	flags     FlagStore
	presenter Presenter

	mu    sync.Mutex
	route Route
}

func NewNavigator(flags FlagStore, presenter Presenter) *Navigator {
	return &Navigator{flags: flags, presenter: presenter, route: RouteOnboarding}
}

// Start picks the first route: RouteLogin for returning users, otherwise
// RouteOnboarding. A store error falls back to RouteOnboarding and is
// returned.
func (n *Navigator) Start(ctx context.Context) (Route, error) {
	done, err := n.flags.IsCompleted(ctx)

	n.mu.Lock()
	defer n.mu.Unlock()
	if err != nil {
		n.route = RouteOnboarding
		return n.route, fmt.Errorf("onboarding: read flag: %w", err)
	}
	if done {
		n.route = RouteLogin
	} else {
		n.route = RouteOnboarding
	}
	return n.route, nil
}

// Route returns the current route.
func (n *Navigator) Route() Route {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.route
}

// Finish records completion and moves to the privacy consent screen.
func (n *Navigator) Finish(ctx context.Context) error {
	n.mu.Lock()
	if n.route != RouteOnboarding {
		n.mu.Unlock()
		return ErrWrongRoute
	}
	n.mu.Unlock()

	if err := n.flags.SetCompleted(ctx, true); err != nil {
		return fmt.Errorf("onboarding: save flag: %w", err)
	}

	n.mu.Lock()
	n.route = RoutePrivacyConsent
	n.mu.Unlock()
	return nil
}

// Understand accepts the consent screen, opens the verification modal and
// moves to the login route hosting it.
func (n *Navigator) Understand() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.route != RoutePrivacyConsent {
		return ErrWrongRoute
	}
	if n.presenter != nil {
		n.presenter.Show()
	}
	n.route = RouteLogin
	return nil
}

// MemoryFlagStore is an in-process FlagStore.
type MemoryFlagStore struct {
	mu   sync.RWMutex
	done bool
}

func (s *MemoryFlagStore) IsCompleted(context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done, nil
}

func (s *MemoryFlagStore) SetCompleted(_ context.Context, completed bool) error {
	s.mu.Lock()
	s.done = completed
	s.mu.Unlock()
	return nil
}
