package capture

import "sync"

// Artifact is a finalized, immutable encoded recording: the full ordered
// chunk sequence concatenated, plus the negotiated MIME type.
type Artifact struct {
	Data     []byte
	MIMEType string
}

// Size returns the artifact's byte length.
func (a *Artifact) Size() int { return len(a.Data) }

// chunkLog is the append-only ordered chunk sequence for one recording
// session. It is shared across recovery epochs: a replacement encoder keeps
// appending to the same log, so the final artifact carries every epoch's
// chunks in chronological order.
type chunkLog struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int
}

// append adds one chunk. Zero-length chunks are discarded.
func (l *chunkLog) append(data []byte) {
	if len(data) == 0 {
		return
	}
	l.mu.Lock()
	l.chunks = append(l.chunks, data)
	l.size += len(data)
	l.mu.Unlock()
}

func (l *chunkLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.chunks)
}

func (l *chunkLog) bytes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// assemble concatenates the accumulated chunks into an artifact. The log is
// left untouched, so a force-finalized snapshot and a later real finalize see
// the same prefix.
func (l *chunkLog) assemble(mimeType string) *Artifact {
	l.mu.Lock()
	defer l.mu.Unlock()
	data := make([]byte, 0, l.size)
	for _, c := range l.chunks {
		data = append(data, c...)
	}
	return &Artifact{Data: data, MIMEType: mimeType}
}
