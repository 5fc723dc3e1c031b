//go:build slack

package channel

import "testing"

func TestSlackChannelName(t *testing.T) {
	ch := NewSlackChannel("xoxb-token", "xapp-token", newChannelTestLogger())
	if ch.Name() != "slack" {
		t.Errorf("Name = %q", ch.Name())
	}
}

func TestSlackChannelFilter(t *testing.T) {
	ch := NewSlackChannel("xoxb", "xapp", newChannelTestLogger(), WithSlackChannels([]string{"C1", "C2"}))
	if !ch.channelIDs["C1"] || !ch.channelIDs["C2"] {
		t.Errorf("channelIDs = %v", ch.channelIDs)
	}
	if ch.channelIDs["C3"] {
		t.Error("unexpected channel allowed")
	}
}

func TestSlackStopBeforeStart(t *testing.T) {
	ch := NewSlackChannel("xoxb", "xapp", newChannelTestLogger())
	if err := ch.Stop(nil); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
