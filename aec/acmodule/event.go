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
	"fmt"
	"sort"
	"strings"

	"github.com/gofrs/uuid"

	"github.com/aethercycle/aethercycle-protocol-sub000/common/log"
)

// Event describes one state transition for off-chain indexing. Attrs carry
// before/after quantities as decimal strings so they survive JSON encoding.
type Event struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Module    string            `json:"module"`
	Timestamp int64             `json:"timestamp"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

func NewEvent(module, name string, ts int64, attrs map[string]string) *Event {
	id, _ := uuid.NewV4()
	return &Event{
		ID:        id.String(),
		Name:      name,
		Module:    module,
		Timestamp: ts,
		Attrs:     attrs,
	}
}

func (e *Event) Attr(key string) string {
	return e.Attrs[key]
}

func (e *Event) String() string {
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s(", e.Name)
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%s", k, e.Attrs[k])
	}
	sb.WriteByte(')')
	return sb.String()
}

// EventSink receives every emitted event. OnEvent must not fail; sinks doing
// fallible work have to swallow their own errors.
type EventSink interface {
	OnEvent(e *Event)
}

type logSink struct {
	logger log.Logger
}

func (s *logSink) OnEvent(e *Event) {
	s.logger.WithFields(log.Fields{
		log.FieldKeyModule: e.Module,
	}).Infof("event %s", e.String())
}

func NewLogSink(logger log.Logger) EventSink {
	return &logSink{logger: logger}
}

type multiSink struct {
	sinks []EventSink
}

func (s *multiSink) OnEvent(e *Event) {
	for _, sink := range s.sinks {
		sink.OnEvent(e)
	}
}

func MultiSink(sinks ...EventSink) EventSink {
	return &multiSink{sinks: sinks}
}
