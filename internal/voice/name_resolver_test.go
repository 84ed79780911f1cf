package voice

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func TestNameCacheExpiry(t *testing.T) {
	now := time.Unix(0, 0)
	c := newNameCache(time.Minute)
	c.now = func() time.Time { return now }
	calls := 0
	fetch := func(id string) string { calls++; return "name-" + id }

	if got := c.lookup("u1", fetch); got != "name-u1" {
		t.Fatalf("got %q", got)
	}
	c.lookup("u1", fetch)
	if calls != 1 {
		t.Fatalf("expected cached lookup, fetch called %d times", calls)
	}
	now = now.Add(2 * time.Minute)
	c.lookup("u1", fetch)
	if calls != 2 {
		t.Fatalf("expected refetch after expiry, fetch called %d times", calls)
	}
	if c.lookup("", fetch) != "" {
		t.Fatal("empty id must resolve to empty name")
	}
}

func TestNameCacheSkipsEmptyAnswers(t *testing.T) {
	c := newNameCache(time.Minute)
	calls := 0
	fetch := func(string) string { calls++; return "" }
	c.lookup("u", fetch)
	c.lookup("u", fetch)
	if calls != 2 {
		t.Fatalf("empty answers must not be cached, fetch called %d times", calls)
	}
}

func TestDiscordResolverFromState(t *testing.T) {
	st := discordgo.NewState()
	guild := &discordgo.Guild{ID: "g1", Name: "Lab"}
	if err := st.GuildAdd(guild); err != nil {
		t.Fatal(err)
	}
	if err := st.MemberAdd(&discordgo.Member{GuildID: "g1", Nick: "Al", User: &discordgo.User{ID: "u1", Username: "alice"}}); err != nil {
		t.Fatal(err)
	}
	if err := st.MemberAdd(&discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u2", Username: "bob"}}); err != nil {
		t.Fatal(err)
	}
	if err := st.ChannelAdd(&discordgo.Channel{ID: "c1", GuildID: "g1", Name: "voice"}); err != nil {
		t.Fatal(err)
	}
	r := NewDiscordResolver(&discordgo.Session{State: st}, "g1")

	if got := r.UserName("u1"); got != "Al" {
		t.Fatalf("expected nickname, got %q", got)
	}
	if got := r.UserName("u2"); got != "bob" {
		t.Fatalf("expected username, got %q", got)
	}
	if got := r.GuildName("g1"); got != "Lab" {
		t.Fatalf("got guild %q", got)
	}
	if got := r.ChannelName("c1"); got != "voice" {
		t.Fatalf("got channel %q", got)
	}
}

func TestNilSessionResolvers(t *testing.T) {
	r := NewDiscordResolver(nil, "g")
	if r.UserName("u") != "" || r.GuildName("g") != "" || r.ChannelName("c") != "" {
		t.Fatal("nil session must resolve nothing")
	}
	var n NameResolver = NewNoopResolver()
	if n.UserName("u") != "" {
		t.Fatal("noop resolver returned a name")
	}
}
