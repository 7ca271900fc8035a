package config

// Scope is the set of Discord identifiers active for the current mode.
type Scope struct {
	GuildID          string
	SummaryChannelID string
	AdminChannelID   string
	MonitoredIDs     []string
}

// IsDev reports whether the bot runs against the development guild.
func (c *Config) IsDev() bool {
	return c.Mode == ModeDevelopment
}

// Scope returns the guild, channels and monitored ids for the configured mode.
func (c *Config) Scope() Scope {
	if c.IsDev() {
		return Scope{
			GuildID:          c.Discord.DevGuildID,
			SummaryChannelID: c.Discord.DevSummaryChannelID,
			AdminChannelID:   c.Discord.AdminChannelID,
			MonitoredIDs:     c.Discord.DevMonitoredIDs,
		}
	}
	return Scope{
		GuildID:          c.Discord.GuildID,
		SummaryChannelID: c.Discord.SummaryChannelID,
		AdminChannelID:   c.Discord.AdminChannelID,
		MonitoredIDs:     c.Discord.MonitoredIDs,
	}
}

// TargetFor returns the channel a scope's summary is posted in. Explicit targets
// win; otherwise a channel summarizes into itself and a category into the summary channel.
func (c *Config) TargetFor(scopeID string, isCategory bool) string {
	if target, ok := c.Discord.Targets[scopeID]; ok && target != "" {
		return target
	}
	if isCategory {
		return c.Scope().SummaryChannelID
	}
	return scopeID
}
