package bot

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// How long a bot DM lives before it is deleted again
const dmLifetime = 12 * time.Hour

// DMManager sends direct messages and deletes them after a fixed
// lifetime so users' inboxes don't fill with stale role notices.
// Pending deletions are cancelled (not executed) on shutdown.
type DMManager struct {
	session *discordgo.Session

	mu     sync.Mutex
	timers map[string]*time.Timer // message ID -> deletion timer
}

func NewDMManager(session *discordgo.Session) *DMManager {
	return &DMManager{
		session: session,
		timers:  make(map[string]*time.Timer),
	}
}

// SendEmbed DMs an embed to the user and schedules its deletion
func (d *DMManager) SendEmbed(userID string, embed *discordgo.MessageEmbed) error {
	channel, err := d.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("failed to open DM channel: %w", err)
	}

	msg, err := d.session.ChannelMessageSendEmbed(channel.ID, embed)
	if err != nil {
		return fmt.Errorf("failed to send DM: %w", err)
	}

	d.scheduleDelete(channel.ID, msg.ID)
	return nil
}

func (d *DMManager) scheduleDelete(channelID, messageID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.timers[messageID] = time.AfterFunc(dmLifetime, func() {
		if err := d.session.ChannelMessageDelete(channelID, messageID); err != nil {
			slog.Debug("Failed to delete expired DM", "message", messageID, "error", err)
		}
		d.mu.Lock()
		delete(d.timers, messageID)
		d.mu.Unlock()
	})
}

// Shutdown cancels all pending deletions
func (d *DMManager) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
}
