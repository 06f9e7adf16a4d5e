/*
 * Copyright 2024 AetherCycle Foundation
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package acmodule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSink struct {
	events []*Event
}

func (s *countingSink) OnEvent(e *Event) {
	s.events = append(s.events, e)
}

func TestEvent_String(t *testing.T) {
	ev := NewEvent("endowment", "EndowmentReleased", 100, map[string]string{
		"amount":  "100",
		"periods": "1",
	})
	assert.Equal(t, "EndowmentReleased(amount=100,periods=1)", ev.String())
	assert.Equal(t, "100", ev.Attr("amount"))
	assert.Equal(t, "", ev.Attr("missing"))
	assert.NotEmpty(t, ev.ID)

	ev2 := NewEvent("endowment", "EndowmentSealed", 100, nil)
	assert.Equal(t, "EndowmentSealed()", ev2.String())
	assert.NotEqual(t, ev.ID, ev2.ID)
}

func TestMultiSink(t *testing.T) {
	s1 := &countingSink{}
	s2 := &countingSink{}
	sink := MultiSink(s1, s2)

	ev := NewEvent("lp", "Staked", 1, nil)
	sink.OnEvent(ev)
	assert.Len(t, s1.events, 1)
	assert.Len(t, s2.events, 1)
	assert.Same(t, ev, s1.events[0])
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(1000)
	assert.EqualValues(t, 1000, c.Unix())
	assert.Equal(t, time.Unix(1000, 0), c.Now())

	c.PassSeconds(500)
	assert.EqualValues(t, 1500, c.Unix())

	c.PassTime(time.Hour)
	assert.EqualValues(t, 1500+3600, c.Unix())

	// SetTime never rewinds
	c.SetTime(time.Unix(100, 0))
	assert.EqualValues(t, 1500+3600, c.Unix())

	c.SetTime(time.Unix(10_000, 0))
	assert.EqualValues(t, 10_000, c.Unix())
}
