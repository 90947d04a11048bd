// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sources

import (
	"fmt"
	"strconv"
	"strings"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/relabs-tech/squat_counter/internal/pose"
)

const (
	// TalkerKeypoints is the talker ID used by the pose co-processor.
	TalkerKeypoints = "KP"
	// TypeFRM is one keypoint frame.
	TypeFRM = "FRM"

	fieldsPerKeypoint = 4
)

// FRM is one frame of keypoints:
//
//	$KPFRM,<seq>,<count>,<name>,<x>,<y>,<score>,...*HH
//
// A count of 0 means nobody was detected.
type FRM struct {
	nmea.BaseSentence
	Seq       uint64
	Keypoints []pose.Keypoint
}

func parseFRM(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	p.AssertType(TypeFRM)
	seq := p.Int64(0, "seq")
	count := p.Int64(1, "count")
	if err := p.Err(); err != nil {
		return nil, err
	}
	if count < 0 || count > int64(len(pose.BodyParts)) {
		return nil, fmt.Errorf("nmea: KPFRM count %d out of range", count)
	}
	if len(s.Fields) != 2+int(count)*fieldsPerKeypoint {
		return nil, fmt.Errorf("nmea: KPFRM count %d does not match %d fields", count, len(s.Fields))
	}

	m := FRM{BaseSentence: s, Seq: uint64(seq)}
	for i := 0; i < int(count); i++ {
		base := 2 + i*fieldsPerKeypoint
		m.Keypoints = append(m.Keypoints, pose.Keypoint{
			Name:  pose.BodyPart(p.String(base, "name")),
			X:     p.Float64(base+1, "x"),
			Y:     p.Float64(base+2, "y"),
			Score: p.Float64(base+3, "score"),
		})
	}
	return m, p.Err()
}

// NewSentenceParser returns a parser that understands KPFRM sentences.
func NewSentenceParser() *nmea.SentenceParser {
	return &nmea.SentenceParser{
		CustomParsers: map[string]nmea.ParserFunc{
			TypeFRM: parseFRM,
		},
	}
}

// EncodeFRM renders one frame as a checksummed sentence, without line ending.
func EncodeFRM(seq uint64, set *pose.KeypointSet) string {
	kps := set.Keypoints()
	var b strings.Builder
	b.WriteString(TalkerKeypoints + TypeFRM)
	b.WriteString("," + strconv.FormatUint(seq, 10))
	b.WriteString("," + strconv.Itoa(len(kps)))
	for _, kp := range kps {
		fmt.Fprintf(&b, ",%s,%.1f,%.1f,%.3f", kp.Name, kp.X, kp.Y, kp.Score)
	}
	body := b.String()
	return fmt.Sprintf("$%s*%s", body, checksum(body))
}

// checksum is the XOR of every byte between '$' and '*'.
func checksum(body string) string {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("%02X", sum)
}
