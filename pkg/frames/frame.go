package frames

type Kind string

const (
	KindAudio  Kind = "audio"
	KindSystem Kind = "system"
)

// Frame is the immutable unit of data exchanged between the capture,
// transport and playback components.
type Frame interface {
	Kind() Kind
	PTS() int64
	Meta() map[string]string
}

// AudioFrame carries one block of 16-bit little-endian PCM samples together
// with the capture sequence number assigned when the block left the device.
// Sequence numbers are strictly increasing within one capture session.
type AudioFrame struct {
	pts  int64
	seq  uint64
	data []byte
	rate int
	ch   int
	meta map[string]string
}

func NewAudioFrame(pts int64, seq uint64, data []byte, rate, ch int, meta map[string]string) AudioFrame {
	return AudioFrame{
		pts:  pts,
		seq:  seq,
		data: append([]byte(nil), data...),
		rate: rate,
		ch:   ch,
		meta: cloneMeta(meta),
	}
}

func (a AudioFrame) Kind() Kind              { return KindAudio }
func (a AudioFrame) PTS() int64              { return a.pts }
func (a AudioFrame) Seq() uint64             { return a.seq }
func (a AudioFrame) Meta() map[string]string { return cloneMeta(a.meta) }
func (a AudioFrame) Data() []byte            { return append([]byte(nil), a.data...) }
func (a AudioFrame) RawPayload() []byte      { return a.data }
func (a AudioFrame) Rate() int               { return a.rate }
func (a AudioFrame) Channels() int           { return a.ch }

// SystemFrame carries named lifecycle events such as recording.started.
type SystemFrame struct {
	pts  int64
	name string
	meta map[string]string
}

func NewSystemFrame(pts int64, name string, meta map[string]string) SystemFrame {
	return SystemFrame{pts: pts, name: name, meta: cloneMeta(meta)}
}

func (s SystemFrame) Kind() Kind              { return KindSystem }
func (s SystemFrame) PTS() int64              { return s.pts }
func (s SystemFrame) Meta() map[string]string { return cloneMeta(s.meta) }
func (s SystemFrame) Name() string            { return s.name }

func cloneMeta(meta map[string]string) map[string]string {
	if len(meta) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
