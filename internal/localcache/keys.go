// Package localcache provides the device-local cold-start mirror of the
// views a user last saw. Values are stored as JSON under keys scoped by user
// and data kind, last writer wins.
package localcache

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/aristath/agrimarket/internal/domain"
)

// Kind names a cached data slice
type Kind string

const (
	KindSelectedAccounts  Kind = "selected_accounts"
	KindSelectedSchedules Kind = "selected_schedules"
	KindFavoriteProducts  Kind = "favorite_products"
)

// ViewKind is the kind under which a mirrored table view is stored.
func ViewKind(table domain.Table) Kind {
	return Kind("view." + string(table))
}

const keyPrefix = "user:"

// Key returns the storage key of kind for userID. Keys of different users
// never collide, so a shared device cannot leak one account's view to another.
// The user ID is escaped, so one containing ':' cannot reach into another
// user's prefix.
func Key(userID string, kind Kind) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, url.QueryEscape(userID), kind)
}

// UserPrefix is the common prefix of every key belonging to userID.
func UserPrefix(userID string) string {
	return keyPrefix + url.QueryEscape(userID) + ":"
}

// SplitKey is the inverse of Key.
func SplitKey(key string) (userID string, kind Kind, ok bool) {
	rest, found := strings.CutPrefix(key, keyPrefix)
	if !found {
		return "", "", false
	}
	i := strings.Index(rest, ":")
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	userID, err := url.QueryUnescape(rest[:i])
	if err != nil {
		return "", "", false
	}
	return userID, Kind(rest[i+1:]), true
}
