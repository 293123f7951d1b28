package prefs

import (
	"errors"
	"fmt"
	"strings"

	"crypto-dashboard/internal/store"
)

const (
	KeyTheme      = "theme"
	KeyFirstVisit = "first_visit"

	ThemeDark  = "dark"
	ThemeLight = "light"

	DefaultTheme = ThemeDark
)

var ErrInvalidTheme = errors.New("invalid theme")

// KV is the backing key-value store. Get reports a missing key with
// store.ErrNotFound.
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
	SetIfAbsent(key, value string) (bool, error)
}

// Service exposes the theme preference and the first-visit flag.
type Service struct {
	kv KV
}

func New(kv KV) *Service {
	return &Service{kv: kv}
}

func (s *Service) Theme() (string, error) {
	v, err := s.kv.Get(KeyTheme)
	if errors.Is(err, store.ErrNotFound) {
		return DefaultTheme, nil
	}
	if err != nil {
		return "", err
	}
	if v != ThemeDark && v != ThemeLight {
		return DefaultTheme, nil
	}
	return v, nil
}

func (s *Service) SetTheme(theme string) error {
	theme = strings.ToLower(strings.TrimSpace(theme))
	if theme != ThemeDark && theme != ThemeLight {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, theme)
	}
	return s.kv.Set(KeyTheme, theme)
}

func (s *Service) ToggleTheme() (string, error) {
	cur, err := s.Theme()
	if err != nil {
		return "", err
	}
	next := ThemeLight
	if cur == ThemeLight {
		next = ThemeDark
	}
	if err := s.SetTheme(next); err != nil {
		return "", err
	}
	return next, nil
}

// MarkVisited records the visit and reports whether it was the first one.
func (s *Service) MarkVisited() (bool, error) {
	first, err := s.kv.SetIfAbsent(KeyFirstVisit, "false")
	if err != nil {
		return false, fmt.Errorf("mark visited: %w", err)
	}
	return first, nil
}

// Visited reports whether a visit has been recorded.
func (s *Service) Visited() (bool, error) {
	_, err := s.kv.Get(KeyFirstVisit)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
