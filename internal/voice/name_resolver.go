package voice

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// NameResolver provides human-friendly names for IDs when available.
type NameResolver interface {
	UserName(userID string) string
	GuildName(guildID string) string
	ChannelName(channelID string) string
}

// NoopResolver returns empty names. Callers fall back to raw IDs.
type NoopResolver struct{}

func NewNoopResolver() *NoopResolver { return &NoopResolver{} }

func (NoopResolver) UserName(string) string    { return "" }
func (NoopResolver) GuildName(string) string   { return "" }
func (NoopResolver) ChannelName(string) string { return "" }

// nameCache is a small TTL map of id -> display name.
type nameCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	val    string
	expiry time.Time
}

func newNameCache(ttl time.Duration) *nameCache {
	return &nameCache{ttl: ttl, now: time.Now, entries: make(map[string]cacheEntry)}
}

func (c *nameCache) get(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return "", false
	}
	if c.now().After(e.expiry) {
		delete(c.entries, id)
		return "", false
	}
	return e.val, true
}

func (c *nameCache) set(id, val string) {
	c.mu.Lock()
	c.entries[id] = cacheEntry{val: val, expiry: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// lookup returns the cached value or calls fetch and caches a non-empty
// answer.
func (c *nameCache) lookup(id string, fetch func(string) string) string {
	if id == "" {
		return ""
	}
	if v, ok := c.get(id); ok {
		return v
	}
	v := fetch(id)
	if v != "" {
		c.set(id, v)
	}
	return v
}

// DiscordResolver resolves names from the session state cache first and
// the REST API second. User names prefer the guild nickname.
type DiscordResolver struct {
	s       *discordgo.Session
	guildID string

	users    *nameCache
	guilds   *nameCache
	channels *nameCache
}

// cacheTTL controls how long a resolved name is reused.
var cacheTTL = 5 * time.Minute

func NewDiscordResolver(s *discordgo.Session, guildID string) *DiscordResolver {
	return &DiscordResolver{
		s:        s,
		guildID:  guildID,
		users:    newNameCache(cacheTTL),
		guilds:   newNameCache(cacheTTL),
		channels: newNameCache(cacheTTL),
	}
}

func (d *DiscordResolver) UserName(userID string) string {
	if d.s == nil {
		return ""
	}
	return d.users.lookup(userID, d.fetchUser)
}

func (d *DiscordResolver) fetchUser(userID string) string {
	if d.guildID != "" && d.s.State != nil {
		if m, err := d.s.State.Member(d.guildID, userID); err == nil && m != nil {
			if m.Nick != "" {
				return m.Nick
			}
			if m.User != nil {
				return m.User.Username
			}
		}
	}
	if u, err := d.s.User(userID); err == nil && u != nil {
		return u.Username
	}
	return ""
}

func (d *DiscordResolver) GuildName(guildID string) string {
	if d.s == nil {
		return ""
	}
	return d.guilds.lookup(guildID, func(id string) string {
		if d.s.State != nil {
			if g, err := d.s.State.Guild(id); err == nil && g != nil {
				return g.Name
			}
		}
		if g, err := d.s.Guild(id); err == nil && g != nil {
			return g.Name
		}
		return ""
	})
}

func (d *DiscordResolver) ChannelName(channelID string) string {
	if d.s == nil {
		return ""
	}
	return d.channels.lookup(channelID, func(id string) string {
		if d.s.State != nil {
			if c, err := d.s.State.Channel(id); err == nil && c != nil {
				return c.Name
			}
		}
		if c, err := d.s.Channel(id); err == nil && c != nil {
			return c.Name
		}
		return ""
	})
}
