package main

import (
	"encoding/json"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-lab/voiceturn/internal/logging"
)

// sensitiveKeys lists JSON keys which should never be logged in plaintext.
var sensitiveKeys = map[string]struct{}{
	"token": {}, "session_id": {}, "access_token": {}, "refresh_token": {},
	"authorization": {}, "password": {}, "email": {}, "client_secret": {},
}

// redactAny walks a decoded JSON value and replaces values for sensitive
// keys in place.
func redactAny(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		for k, val := range vv {
			if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
				vv[k] = "<redacted>"
				continue
			}
			vv[k] = redactAny(val)
		}
		return vv
	case []any:
		for i, it := range vv {
			vv[i] = redactAny(it)
		}
		return vv
	default:
		return v
	}
}

// eventFields pulls the searchable ids out of a gateway event.
func eventFields(evt *discordgo.Event) []interface{} {
	kv := []interface{}{"type", evt.Type}
	switch e := evt.Struct.(type) {
	case *discordgo.VoiceStateUpdate:
		return append(kv, "guild.id", e.GuildID, "channel.id", e.ChannelID, "user.id", e.UserID)
	case *discordgo.Ready:
		if e.User != nil {
			kv = append(kv, "user.id", e.User.ID)
		}
		return kv
	case *discordgo.GuildCreate:
		return append(kv, "guild.id", e.ID)
	}
	var m map[string]any
	if len(evt.RawData) == 0 || json.Unmarshal(evt.RawData, &m) != nil {
		return kv
	}
	m = redactAny(m).(map[string]any)
	for _, k := range []string{"guild_id", "channel_id", "user_id"} {
		if s, ok := m[k].(string); ok && s != "" {
			kv = append(kv, strings.Replace(k, "_", ".", 1), s)
		}
	}
	return kv
}

// logEvent records every gateway event at debug level.
func logEvent(_ *discordgo.Session, evt *discordgo.Event) {
	logging.Debugw("discord event", eventFields(evt)...)
}
