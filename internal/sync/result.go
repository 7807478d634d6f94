package sync

// Channel messages.
const (
	MessageChannelProcessed = "channel_processed"
	MessageEmptyChannel     = "empty_or_inaccessible"
)

// Run messages.
const (
	MessageRunSucceeded = "All channels processed successfully."
	MessageRunFailed    = "One or more channels failed during sync."
)

// ChannelResult summarizes one channel.
type ChannelResult struct {
	Channel          string `json:"channel" yaml:"channel" toml:"channel"`
	Success          bool   `json:"success" yaml:"success" toml:"success"`
	Created          int    `json:"created" yaml:"created" toml:"created"`
	Updated          int    `json:"updated" yaml:"updated" toml:"updated"`
	SkippedUnchanged int    `json:"skippedUnchanged" yaml:"skippedUnchanged" toml:"skippedUnchanged"`
	OrphanedUpdated  int    `json:"orphanedUpdated" yaml:"orphanedUpdated" toml:"orphanedUpdated"`
	Errors           int    `json:"errors" yaml:"errors" toml:"errors"`
	Message          string `json:"message" yaml:"message" toml:"message"`
	BlocksProcessed  int    `json:"blocksProcessed" yaml:"blocksProcessed" toml:"blocksProcessed"`
}

// RunResult summarizes a run.
type RunResult struct {
	Success          bool            `json:"success" yaml:"success" toml:"success"`
	OverallSuccess   bool            `json:"overallSuccess" yaml:"overallSuccess" toml:"overallSuccess"`
	Message          string          `json:"message" yaml:"message" toml:"message"`
	SyncRunID        string          `json:"syncRunId" yaml:"syncRunId" toml:"syncRunId"`
	UpdatedOrCreated int             `json:"updatedOrCreated" yaml:"updatedOrCreated" toml:"updatedOrCreated"`
	Channels         []ChannelResult `json:"channels" yaml:"channels" toml:"channels"`
	StatusMessages   []string        `json:"statusMessages" yaml:"statusMessages" toml:"statusMessages"`
}
