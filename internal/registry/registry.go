package registry

import (
	"context"
	"time"
)

// Register implements the registration cycle: reaps dead entries, decides
// this process's name/voice via the reconciliation rules, claims the
// lowest free port at or above basePort, writes back, and returns the
// chosen entry. The lock is held only for the duration of this call.
func (s *Store) Register(preferredName string, pid int, tmuxSession string, reconcile Reconciler) (Entry, error) {
	var result Entry
	err := s.withLock(func(doc *document) error {
		s.reapDeadLocked(doc)

		claimedVoices := make(map[string]bool, len(doc.Entries))
		claimedNames := make(map[string]bool, len(doc.Entries))
		for _, e := range doc.Entries {
			claimedVoices[e.VoiceID] = true
			claimedNames[e.Name] = true
		}

		name, voiceID := reconcile(preferredName, claimedNames, claimedVoices)

		entry := Entry{
			Name:        name,
			VoiceID:     voiceID,
			Port:        s.lowestFreePort(doc),
			PID:         pid,
			TmuxSession: tmuxSession,
			StartedAt:   time.Now(),
		}
		doc.Entries = append(doc.Entries, entry)
		result = entry
		return nil
	})
	return result, err
}

// AttachSessionID is the resume path: the editor hands over its logical
// session id after startup. If a live sibling (same session_id) already
// exists, self adopts its name and voice (releasing its own prior
// claim); otherwise self's session_id is simply stamped.
func (s *Store) AttachSessionID(selfPID int, sessionID string) (Entry, error) {
	var result Entry
	err := s.withLock(func(doc *document) error {
		s.reapDeadLocked(doc)

		selfIdx, ok := s.findByPID(doc, selfPID)
		if !ok {
			return &NotRegisteredError{PID: selfPID}
		}

		var siblingIdx = -1
		for i, e := range doc.Entries {
			if i != selfIdx && e.SessionID == sessionID && sessionID != "" {
				siblingIdx = i
				break
			}
		}

		if siblingIdx >= 0 {
			sibling := doc.Entries[siblingIdx]
			doc.Entries[selfIdx].Name = sibling.Name
			doc.Entries[selfIdx].VoiceID = sibling.VoiceID
			doc.Entries[selfIdx].SessionID = sessionID
		} else {
			doc.Entries[selfIdx].SessionID = sessionID
		}
		result = doc.Entries[selfIdx]
		return nil
	})
	return result, err
}

// Rename verifies newName is free among live entries with a *different*
// session_id before renaming self; siblings may share a name.
func (s *Store) Rename(selfPID int, newName string) (Entry, error) {
	var result Entry
	err := s.withLock(func(doc *document) error {
		s.reapDeadLocked(doc)

		selfIdx, ok := s.findByPID(doc, selfPID)
		if !ok {
			return &NotRegisteredError{PID: selfPID}
		}
		self := doc.Entries[selfIdx]

		for i, e := range doc.Entries {
			if i == selfIdx {
				continue
			}
			if e.Name == newName && e.SessionID != self.SessionID {
				return &ErrNameOccupied{Name: e.Name, VoiceID: e.VoiceID}
			}
		}

		doc.Entries[selfIdx].Name = newName
		result = doc.Entries[selfIdx]
		return nil
	})
	return result, err
}

// SetVoice updates self's published voice id (set_voice on the session's
// own name), keeping the shared registry aligned with the in-process
// binding.
func (s *Store) SetVoice(selfPID int, voiceID string) (Entry, error) {
	var result Entry
	err := s.withLock(func(doc *document) error {
		s.reapDeadLocked(doc)
		idx, ok := s.findByPID(doc, selfPID)
		if !ok {
			return &NotRegisteredError{PID: selfPID}
		}
		doc.Entries[idx].VoiceID = voiceID
		result = doc.Entries[idx]
		return nil
	})
	return result, err
}

// Unregister removes self's entry.
func (s *Store) Unregister(selfPID int) error {
	return s.withLock(func(doc *document) error {
		idx, ok := s.findByPID(doc, selfPID)
		if !ok {
			return nil
		}
		doc.Entries = append(doc.Entries[:idx], doc.Entries[idx+1:]...)
		return nil
	})
}

// Sweep removes dead-PID entries and, when a PingFunc is configured,
// entries whose HTTP side-channel has been unresponsive longer than
// OrphanThreshold. Orphan pinging happens outside the lock; the decision
// is applied in a second, short, locked pass.
func (s *Store) Sweep(ctx context.Context) error {
	var candidates []Entry
	if err := s.withLock(func(doc *document) error {
		s.reapDeadLocked(doc)
		candidates = append(candidates, doc.Entries...)
		return nil
	}); err != nil {
		return err
	}

	if s.ping == nil {
		return nil
	}

	now := time.Now()
	orphaned := make(map[string]bool)
	for _, e := range candidates {
		if s.ping(ctx, e) {
			s.lastSeen[e.Name] = now
			continue
		}
		last, seen := s.lastSeen[e.Name]
		if !seen {
			// First failed ping: start the clock, don't reap yet.
			s.lastSeen[e.Name] = now
			continue
		}
		if now.Sub(last) > OrphanThreshold {
			orphaned[e.Name] = true
		}
	}
	if len(orphaned) == 0 {
		return nil
	}

	return s.withLock(func(doc *document) error {
		live := doc.Entries[:0]
		for _, e := range doc.Entries {
			if orphaned[e.Name] {
				delete(s.lastSeen, e.Name)
				continue
			}
			live = append(live, e)
		}
		doc.Entries = live
		return nil
	})
}

// NotRegisteredError is returned when an operation targets a PID with no
// entry in the registry (should not happen in steady state; surfaced so
// callers can log loudly rather than silently no-op).
type NotRegisteredError struct{ PID int }

func (e *NotRegisteredError) Error() string {
	return "registry: no entry registered for this process"
}

