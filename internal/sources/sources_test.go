// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sources

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/squat_counter/internal/pose"
	"github.com/relabs-tech/squat_counter/internal/timeutil"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func estimate(t *testing.T, src pose.Source) *pose.KeypointSet {
	t.Helper()
	set, err := src.Estimate(context.Background(), pose.Frame{})
	require.NoError(t, err)
	return set
}

func TestLatest_Staleness(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	l := NewLatest(clock, 500*time.Millisecond)

	assert.Nil(t, estimate(t, l), "empty holder reports nobody")

	standing := pose.DefaultSubject.At(0)
	l.Update(7, standing)
	first := estimate(t, l)
	require.NotNil(t, first)
	assert.Equal(t, standing.Keypoints(), first.Keypoints())
	assert.Equal(t, uint64(7), first.Seq(), "served set carries the frame number")
	assert.Same(t, first, estimate(t, l), "estimate does not consume")
	assert.Equal(t, uint64(7), l.Seq())

	clock.Advance(500 * time.Millisecond)
	assert.Same(t, first, estimate(t, l))

	clock.Advance(time.Millisecond)
	assert.Nil(t, estimate(t, l), "stale frame is hidden")

	l.Update(8, nil)
	assert.Nil(t, estimate(t, l))
}

func TestDecodeMessage(t *testing.T) {
	seq, set, err := DecodeMessage([]byte(`{"seq":3,"keypoints":[
		{"name":"left_hip","x":1,"y":300,"score":0.9},
		{"name":"right_hip","x":2,"y":301,"score":0.1},
		{"name":"tail","x":3,"y":302,"score":0.9}]}`), 0.3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)
	require.NotNil(t, set)
	assert.Equal(t, 1, set.Len())
	y, ok := set.Y(pose.LeftHip)
	assert.True(t, ok)
	assert.Equal(t, 300.0, y)
	_, ok = set.Get(pose.RightHip)
	assert.False(t, ok, "low score reads as absent")

	for _, payload := range []string{`{"seq":4}`, `{"seq":4,"keypoints":[]}`} {
		_, set, err = DecodeMessage([]byte(payload), 0.3)
		require.NoError(t, err)
		assert.Nil(t, set, payload)
	}

	_, _, err = DecodeMessage([]byte(`{"seq":`), 0.3)
	assert.Error(t, err)
}

func TestEncodeMessage_RoundTrip(t *testing.T) {
	standing := pose.DefaultSubject.At(0)
	payload, err := EncodeMessage(11, standing)
	require.NoError(t, err)

	seq, got, err := DecodeMessage(payload, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), seq)
	if diff := cmp.Diff(standing.Keypoints(), got.Keypoints()); diff != "" {
		t.Errorf("keypoints mismatch (-want +got):\n%s", diff)
	}

	payload, err = EncodeMessage(12, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq":12,"keypoints":[]}`, string(payload))
}

func TestMQTTSource_Handle(t *testing.T) {
	log, hook := test.NewNullLogger()
	clock := timeutil.NewMockClock(epoch)
	s := newMQTTSource(NewLatest(clock, time.Second), nil, "squat/keypoints", 0.3, log)

	payload, err := EncodeMessage(1, pose.DefaultSubject.At(0))
	require.NoError(t, err)
	s.handle(nil, fakeMessage{topic: "squat/keypoints", payload: payload})
	set := estimate(t, s)
	require.NotNil(t, set)
	assert.Equal(t, 9, set.Len())

	s.handle(nil, fakeMessage{topic: "squat/keypoints", payload: []byte("garbage")})
	assert.NotNil(t, estimate(t, s), "bad payload keeps previous frame")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "dropping keypoint message", hook.LastEntry().Message)

	s.handle(nil, fakeMessage{topic: "squat/keypoints", payload: []byte(`{"seq":2,"keypoints":[]}`)})
	assert.Nil(t, estimate(t, s))
	assert.Equal(t, uint64(2), s.Seq())
}

func TestFRM_RoundTrip(t *testing.T) {
	squatting := pose.DefaultSubject.At(1)
	line := EncodeFRM(42, squatting)
	assert.True(t, strings.HasPrefix(line, "$KPFRM,42,9,"))

	sentence, err := NewSentenceParser().Parse(line)
	require.NoError(t, err)
	frm, ok := sentence.(FRM)
	require.True(t, ok)
	assert.Equal(t, uint64(42), frm.Seq)
	require.Len(t, frm.Keypoints, 9)

	got := pose.NewKeypointSet(frm.Keypoints, 0)
	for _, part := range []pose.BodyPart{pose.LeftHip, pose.RightKnee, pose.LeftAnkle} {
		want, _ := squatting.Get(part)
		have, ok := got.Get(part)
		require.True(t, ok, part)
		assert.InDelta(t, want.Y, have.Y, 0.05, part)
		assert.InDelta(t, want.Score, have.Score, 0.001, part)
	}
}

func TestFRM_Errors(t *testing.T) {
	p := NewSentenceParser()

	line := EncodeFRM(1, pose.DefaultSubject.At(0))
	bad := line[:len(line)-2] + "00"
	if bad == line {
		bad = line[:len(line)-2] + "01"
	}
	_, err := p.Parse(bad)
	assert.Error(t, err, "checksum mismatch")

	body := "KPFRM,1,2,left_hip,1.0,2.0,0.9"
	_, err = p.Parse("$" + body + "*" + checksum(body))
	assert.Error(t, err, "count larger than fields")

	body = "KPFRM,1,1,left_hip,1.0,abc,0.9"
	_, err = p.Parse("$" + body + "*" + checksum(body))
	assert.Error(t, err, "non numeric y")

	for _, count := range []string{"4611686018427387904", "18", "-1"} {
		body = "KPFRM,1," + count
		_, err = p.Parse("$" + body + "*" + checksum(body))
		assert.Error(t, err, "count %s", count)
	}
}

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

func TestSerialSource_HandleLine(t *testing.T) {
	log, _ := test.NewNullLogger()
	clock := timeutil.NewMockClock(epoch)
	s := NewSerialSource(NewLatest(clock, time.Second), nopCloser{strings.NewReader("")}, 0.3, log)

	require.NoError(t, s.HandleLine("garbage without dollar"))
	require.NoError(t, s.HandleLine(""))
	assert.Nil(t, estimate(t, s))

	require.NoError(t, s.HandleLine(EncodeFRM(5, pose.DefaultSubject.At(0))+"\r\n"))
	set := estimate(t, s)
	require.NotNil(t, set)
	assert.Equal(t, 9, set.Len())

	require.NoError(t, s.HandleLine(EncodeFRM(6, nil)))
	assert.Nil(t, estimate(t, s))
	assert.Equal(t, uint64(6), s.Seq())

	assert.Error(t, s.HandleLine("$KPFRM,7,0*00"))
}

func TestSerialSource_Run(t *testing.T) {
	log, _ := test.NewNullLogger()
	clock := timeutil.NewMockClock(epoch)
	stream := strings.Join([]string{
		"$KPFRM,1,0*" + checksum("KPFRM,1,0"),
		"$KPFRM,2,1,left_h", // partial
		EncodeFRM(3, pose.DefaultSubject.At(0)),
		"",
	}, "\r\n")
	s := NewSerialSource(NewLatest(clock, time.Second), nopCloser{strings.NewReader(stream)}, 0.3, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := s.Run(ctx)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, uint64(3), s.Seq())
	assert.NotNil(t, estimate(t, s))
}
