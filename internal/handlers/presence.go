package handlers

import (
	"github.com/bwmarrin/discordgo"
)

// StatePresence answers voice occupancy questions from the gateway state cache.
type StatePresence struct {
	state *discordgo.State
}

func NewPresence(state *discordgo.State) *StatePresence {
	return &StatePresence{state: state}
}

func (p *StatePresence) UserVoiceChannel(guildID, userID string) (string, bool) {
	return userInVoice(p.state, guildID, userID)
}

// HumanOccupants counts non-bot members in channelID. Members missing from
// the cache count as human and an uncached guild counts as occupied, so a
// partial cache never triggers a disconnect.
func (p *StatePresence) HumanOccupants(guildID, channelID string) int {
	g, _ := p.state.Guild(guildID)
	if g == nil {
		return 1
	}
	self := ""
	if p.state.User != nil {
		self = p.state.User.ID
	}

	p.state.RLock()
	defer p.state.RUnlock()
	n := 0
	for _, vs := range g.VoiceStates {
		if vs.ChannelID != channelID || vs.UserID == self {
			continue
		}
		if isBotMember(g, vs) {
			continue
		}
		n++
	}
	return n
}

func userInVoice(state *discordgo.State, guildID, userID string) (channelID string, ok bool) {
	g, _ := state.Guild(guildID)
	if g == nil {
		return "", false
	}
	state.RLock()
	defer state.RUnlock()
	for _, vs := range g.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, true
		}
	}
	return "", false
}

// isBotMember must be called with the state read lock held.
func isBotMember(g *discordgo.Guild, vs *discordgo.VoiceState) bool {
	if vs.Member != nil && vs.Member.User != nil {
		return vs.Member.User.Bot
	}
	for _, m := range g.Members {
		if m.User != nil && m.User.ID == vs.UserID {
			return m.User.Bot
		}
	}
	return false
}
