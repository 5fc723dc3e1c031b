//go:build discord

package channel

import "testing"

func TestDiscordChannelName(t *testing.T) {
	ch := NewDiscordChannel("token", newChannelTestLogger())
	if ch.Name() != "discord" {
		t.Errorf("Name = %q", ch.Name())
	}
}

func TestDiscordChannelOption(t *testing.T) {
	ch := NewDiscordChannel("token", newChannelTestLogger(), WithDiscordChannel("c1"))
	if ch.channelID != "c1" {
		t.Errorf("channelID = %q", ch.channelID)
	}
}

func TestDiscordStopBeforeStart(t *testing.T) {
	ch := NewDiscordChannel("token", newChannelTestLogger())
	if err := ch.Stop(nil); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
