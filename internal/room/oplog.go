package room

// Log is a room's ordered operation history together with its redo stack.
// Replaying history in order from a blank canvas reproduces what every
// client sees. The zero value is an empty log.
//
// A Log is not safe for concurrent use; Room serializes access to it.
type Log struct {
	history []Operation
	redo    []Operation
}

// Append commits op to the end of the history. Any redo trail is dropped,
// since a fresh edit invalidates it.
func (l *Log) Append(op Operation) Operation {
	l.history = append(l.history, op)
	l.redo = nil
	return op
}

// Undo moves the newest operation onto the redo stack and returns the
// resulting history. With nothing to undo it returns the history unchanged.
func (l *Log) Undo() []Operation {
	if len(l.history) == 0 {
		return l.Snapshot()
	}
	last := len(l.history) - 1
	op := l.history[last]
	l.history[last] = Operation{}
	l.history = l.history[:last]
	l.redo = append(l.redo, op)
	return l.Snapshot()
}

// Redo pops the most recently undone operation back onto the end of the
// history and returns it. With an empty redo stack the history is unchanged.
func (l *Log) Redo() []Operation {
	if len(l.redo) == 0 {
		return l.Snapshot()
	}
	last := len(l.redo) - 1
	op := l.redo[last]
	l.redo[last] = Operation{}
	l.redo = l.redo[:last]
	l.history = append(l.history, op)
	return l.Snapshot()
}

// Returns a copy of the history, never nil
func (l *Log) Snapshot() []Operation {
	out := make([]Operation, len(l.history))
	copy(out, l.history)
	return out
}

// Returns a copy of the redo stack, oldest first
func (l *Log) RedoSnapshot() []Operation {
	out := make([]Operation, len(l.redo))
	copy(out, l.redo)
	return out
}

func (l *Log) Len() int { return len(l.history) }
func (l *Log) RedoLen() int { return len(l.redo) }
