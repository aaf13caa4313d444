//go:build !linux

package reactor

var defaultPollerFactory pollerFactory = func(int) (poller, error) {
	return nil, ErrUnsupportedPlatform
}
