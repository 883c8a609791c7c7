package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/dkeye/RailPhone/internal/audio"
	"github.com/dkeye/RailPhone/internal/directory"
	"github.com/dkeye/RailPhone/internal/domain"
	"github.com/dkeye/RailPhone/internal/phone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeControl struct {
	calls   []string
	dialed  string
	station domain.Station
	sel     domain.AudioSelection
	muted   bool
}

func (f *fakeControl) StartCall(n string) error {
	f.calls = append(f.calls, "dial")
	f.dialed = n
	return nil
}
func (f *fakeControl) AnswerCall() error { f.calls = append(f.calls, "answer"); return nil }
func (f *fakeControl) EndCall() error    { f.calls = append(f.calls, "hangup"); return phone.ErrNoCall }
func (f *fakeControl) ToggleHold() error { f.calls = append(f.calls, "hold"); return nil }
func (f *fakeControl) ToggleMute() (bool, error) {
	f.muted = !f.muted
	return f.muted, nil
}
func (f *fakeControl) ToggleSpeaker() (bool, error) { return true, nil }
func (f *fakeControl) ChangeStation(_ context.Context, st domain.Station) error {
	f.station = st
	return nil
}
func (f *fakeControl) UpdateAudioDevices(sel domain.AudioSelection) error {
	f.sel = sel
	return nil
}
func (f *fakeControl) Status() phone.Status                { return phone.Idle }
func (f *fakeControl) Online() bool                        { return true }
func (f *fakeControl) PeerDisplay() string                 { return "busy" }
func (f *fakeControl) Session() (domain.CallSession, bool) { return domain.CallSession{}, false }
func (f *fakeControl) Station() domain.Station             { return domain.Station{Number: "100", Name: "Control"} }

func newTestConsole() (*console, *fakeControl, *bytes.Buffer) {
	ctl := &fakeControl{}
	out := &bytes.Buffer{}
	c := &console{
		ctl:     ctl,
		backend: audio.Null{},
		dir:     directory.New([]domain.Station{{Number: "101", Name: "Depot"}}),
		audio:   domain.AudioSelection{InputGain: 1.5},
		out:     out,
	}
	return c, ctl, out
}

func TestConsole_Commands(t *testing.T) {
	c, ctl, out := newTestConsole()
	script := strings.Join([]string{
		"dial 101",
		"",
		"answer",
		"hold",
		"hangup",
		"mute",
		"mute",
		"station 101",
		"use mic0 spk1",
		"dir",
		"status",
		"bogus",
		"quit",
		"dial 999",
	}, "\n")

	require.NoError(t, c.run(context.Background(), strings.NewReader(script)))

	assert.Equal(t, []string{"dial", "answer", "hold", "hangup"}, ctl.calls)
	assert.Equal(t, "101", ctl.dialed, "nothing runs after quit")
	assert.Equal(t, domain.Station{Number: "101", Name: "Depot"}, ctl.station)
	assert.Equal(t, domain.AudioSelection{Input: "mic0", Output: "spk1", InputGain: 1.5}, ctl.sel)

	text := out.String()
	assert.Contains(t, text, "error: "+phone.ErrNoCall.Error())
	assert.Contains(t, text, "mute on")
	assert.Contains(t, text, "mute off")
	assert.Contains(t, text, "101      Depot")
	assert.Contains(t, text, "station Control (100), online, idle")
	assert.Contains(t, text, "last: busy")
	assert.Contains(t, text, `unknown command "bogus"`)
}

func TestConsole_UsageErrors(t *testing.T) {
	c, _, _ := newTestConsole()
	ctx := context.Background()
	assert.ErrorContains(t, c.exec(ctx, "dial"), "usage")
	assert.ErrorContains(t, c.exec(ctx, "use onlyone"), "usage")
	assert.ErrorIs(t, c.exec(ctx, "station 12a"), domain.ErrNumberInvalid)
	assert.ErrorIs(t, c.exec(ctx, "QUIT"), errQuit)
}

func TestConsole_Notifications(t *testing.T) {
	c, _, out := newTestConsole()
	c.printNotification(phone.Notification{Kind: phone.IncomingCall, Name: "Depot", Number: "101"})
	c.printNotification(phone.Notification{Kind: phone.StatusChanged, Status: phone.Incoming})
	c.printNotification(phone.Notification{Kind: phone.OnlineChanged})
	assert.Equal(t, "* incoming call from Depot (101), type \"answer\"\n* incoming\n* offline\n", out.String())
}
