package navigation

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Router receives the address produced by a navigation.
type Router interface {
	Navigate(address string)
}

// RouterFunc adapts a function to the Router interface.
type RouterFunc func(address string)

// Navigate calls f(address).
func (f RouterFunc) Navigate(address string) {
	f(address)
}

// Navigator tracks the current address and performs page navigations.
type Navigator struct {
	address string
	router  Router
	logger  zerolog.Logger
}

// NewNavigator creates a navigator starting at address.
func NewNavigator(address string, router Router, logger zerolog.Logger) *Navigator {
	if router == nil {
		panic("router cannot be nil")
	}
	return &Navigator{
		address: address,
		router:  router,
		logger:  logger,
	}
}

// Address returns the current address.
func (n *Navigator) Address() string {
	return n.address
}

// RequestedPage returns the sanitized page of the current address.
func (n *Navigator) RequestedPage() int {
	return PageFromAddress(n.address)
}

// AddressFor returns the current address with its page parameter set to page.
func (n *Navigator) AddressFor(page int) (string, error) {
	return BuildNextAddress(n.address, page)
}

// Visit records an address reached without GoTo, e.g. a followed link or a
// reload. The router is not called.
func (n *Navigator) Visit(address string) {
	n.logger.Debug().
		Str("from", n.address).
		Str("address", address).
		Msg("Visited")
	n.address = address
}

// GoTo navigates to the current address with its page parameter set to page.
func (n *Navigator) GoTo(page int) error {
	next, err := n.AddressFor(page)
	if err != nil {
		return fmt.Errorf("build address for page %d: %w", page, err)
	}

	n.logger.Debug().
		Str("from", n.address).
		Str("address", next).
		Int("page", page).
		Msg("Navigating")

	n.address = next
	n.router.Navigate(next)
	return nil
}
