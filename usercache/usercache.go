// Package usercache maps a depot user id to a "Name <email>" string, backed
// by a tab-separated file so repeated runs avoid re-querying the depot for
// its full user list (§4.4 "committer comes from the user cache").
package usercache

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rcowham/p4gitbridge/depot"
)

// Cache is an in-memory depot-user -> "Name <email>" map, filled from a
// file by Load and from the depot by RefreshFromDepot; Lookup itself never
// reads the file or queries the depot.
type Cache struct {
	logger   *logrus.Logger
	filename string
	users    map[string]string
	loaded   bool
}

// New builds a Cache backed by filename (typically
// config.DefaultUserCacheFile resolved under $HOME).
func New(logger *logrus.Logger, filename string) *Cache {
	return &Cache{logger: logger, filename: filename, users: map[string]string{}}
}

// Load reads the cache file if present; a missing file is not an error —
// the cache starts empty until RefreshFromDepot fills it.
func (c *Cache) Load() error {
	c.loaded = true
	f, err := os.Open(c.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			c.logger.Warnf("usercache: skipping malformed line %q", line)
			continue
		}
		c.users[parts[0]] = parts[1]
	}
	return sc.Err()
}

// Lookup returns the "Name <email>" string for a depot user id. A user not
// present (never refreshed from the depot, or genuinely unknown) falls
// back to "<user> <user@b>" per §4.4 "missing users become `<author> <a@b>`".
func (c *Cache) Lookup(user string) string {
	if v, ok := c.users[user]; ok {
		return v
	}
	return fmt.Sprintf("%s <%s@b>", user, user)
}

// LookupOK is Lookup plus whether the user was actually found in the
// cache, as opposed to the synthetic fallback. The label/tag engine needs
// this distinction for its §9-preserved tagger-lookup quirk.
func (c *Cache) LookupOK(user string) (string, bool) {
	v, ok := c.users[user]
	return v, ok
}

// RefreshFromDepot queries `p4 users`, merges every user into the cache and
// rewrites the cache file. runImport calls it once, right after Load and
// before any Lookup.
func (c *Cache) RefreshFromDepot(client *depot.Client) error {
	records, err := client.List([]string{"users"}, nil, false)
	if err != nil {
		return err
	}
	for _, rec := range records {
		user, ok := rec.Get("User")
		if !ok {
			continue
		}
		fullName, _ := rec.Get("FullName")
		email, _ := rec.Get("Email")
		c.users[user] = fmt.Sprintf("%s <%s>", fullName, email)
	}
	return c.save()
}

func (c *Cache) save() error {
	var b strings.Builder
	for user, nameEmail := range c.users {
		fmt.Fprintf(&b, "%s\t%s\n", user, nameEmail)
	}
	return os.WriteFile(c.filename, []byte(b.String()), 0o644)
}
