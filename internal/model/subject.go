package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultConfidence is assigned to subjects nobody has scored.
const DefaultConfidence = 0.8

var subjectNamespace = uuid.MustParse("9d4c2f7a-61e8-4b3d-8c5f-2a7e1b9d3c64")

// SubjectKey is the defining tuple of a Subject: the owning conversation and
// its canonical keyword combination.
type SubjectKey struct {
	ConversationID string
	Keywords       KeywordSet
}

// ID derives the subject identity. Each component is length-prefixed so that
// no two distinct keys share an encoding.
func (k SubjectKey) ID() uuid.UUID {
	var b strings.Builder
	writeField := func(s string) {
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}
	writeField(k.ConversationID)
	b.WriteString(strconv.Itoa(k.Keywords.Len()))
	b.WriteByte('#')
	for _, t := range k.Keywords.terms {
		writeField(t)
	}
	return uuid.NewSHA1(subjectNamespace, []byte(b.String()))
}

// LifecycleState enumerates the states a Subject can be in.
type LifecycleState string

const (
	StateActive   LifecycleState = "active"
	StateArchived LifecycleState = "archived"
)

// ArchiveOrigin records what archived a subject.
type ArchiveOrigin string

const (
	// ArchiveMerged is an explicit merge; it is never undone by analysis.
	ArchiveMerged ArchiveOrigin = "merged"
	// ArchiveConsolidated is a singleton folded into a busier pair; a later
	// analysis that keeps the subject revives it.
	ArchiveConsolidated ArchiveOrigin = "consolidated"
)

// Lifecycle is Active, or Archived with the subject that superseded it.
type Lifecycle struct {
	state        LifecycleState
	supersededBy uuid.UUID
}

// Active returns the lifecycle of a live subject.
func Active() Lifecycle { return Lifecycle{state: StateActive} }

// Archived returns the lifecycle of a subject replaced by successor.
func Archived(successor uuid.UUID) Lifecycle {
	return Lifecycle{state: StateArchived, supersededBy: successor}
}

// State returns the lifecycle tag; the zero Lifecycle reads as active.
func (l Lifecycle) State() LifecycleState {
	if l.state == "" {
		return StateActive
	}
	return l.state
}

func (l Lifecycle) IsArchived() bool { return l.state == StateArchived }

// SupersededBy returns the successor of an archived subject.
func (l Lifecycle) SupersededBy() (uuid.UUID, bool) {
	if l.state != StateArchived {
		return uuid.Nil, false
	}
	return l.supersededBy, true
}

// ParseLifecycle rebuilds a Lifecycle from its stored form.
func ParseLifecycle(state string, successor string) (Lifecycle, error) {
	switch LifecycleState(state) {
	case StateActive, "":
		return Active(), nil
	case StateArchived:
		id, err := uuid.Parse(successor)
		if err != nil {
			return Lifecycle{}, fmt.Errorf("archived subject successor %q: %w", successor, err)
		}
		return Archived(id), nil
	default:
		return Lifecycle{}, fmt.Errorf("unknown subject state %q", state)
	}
}

type lifecycleJSON struct {
	State        LifecycleState `json:"state"`
	SupersededBy *uuid.UUID     `json:"superseded_by,omitempty"`
}

func (l Lifecycle) MarshalJSON() ([]byte, error) {
	out := lifecycleJSON{State: l.State()}
	if id, ok := l.SupersededBy(); ok {
		out.SupersededBy = &id
	}
	return json.Marshal(out)
}

func (l *Lifecycle) UnmarshalJSON(data []byte) error {
	var in lifecycleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.State == StateArchived {
		if in.SupersededBy == nil {
			return fmt.Errorf("archived lifecycle without successor")
		}
		*l = Archived(*in.SupersededBy)
		return nil
	}
	*l = Active()
	return nil
}

// Subject is a cluster of messages sharing a keyword combination within one
// conversation.
type Subject struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Keywords       KeywordSet `json:"keywords"`
	Description    string     `json:"description"`
	MessageCount   int        `json:"message_count"`
	Confidence     float64    `json:"confidence"`
	FirstSeen      time.Time  `json:"first_seen"`
	LastSeen       time.Time  `json:"last_seen"`
	Lifecycle      Lifecycle  `json:"lifecycle"`
}

// NewSubject creates an active subject whose ID is derived from its key.
func NewSubject(key SubjectKey, seen time.Time) Subject {
	return Subject{
		ID:             key.ID(),
		ConversationID: key.ConversationID,
		Keywords:       key.Keywords,
		Confidence:     DefaultConfidence,
		FirstSeen:      seen,
		LastSeen:       seen,
		Lifecycle:      Active(),
	}
}

// Key returns the defining tuple of the subject.
func (s Subject) Key() SubjectKey {
	return SubjectKey{ConversationID: s.ConversationID, Keywords: s.Keywords}
}

// Observe records one more supporting message seen at t.
func (s *Subject) Observe(t time.Time) {
	s.MessageCount++
	if t.After(s.LastSeen) {
		s.LastSeen = t
	}
	if t.Before(s.FirstSeen) {
		s.FirstSeen = t
	}
}
