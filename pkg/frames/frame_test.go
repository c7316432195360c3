package frames

import "testing"

func TestAudioFrameCopiesPayload(t *testing.T) {
	src := []byte{1, 2, 3}
	frame := NewAudioFrame(10, 7, src, 24000, 1, nil)
	src[0] = 99

	if got := frame.Data(); got[0] != 1 {
		t.Fatalf("frame shares the caller's buffer: %v", got)
	}
	out := frame.Data()
	out[1] = 99
	if frame.RawPayload()[1] != 2 {
		t.Fatal("Data handed out the internal buffer")
	}
	if frame.Seq() != 7 || frame.PTS() != 10 || frame.Kind() != KindAudio {
		t.Fatalf("frame fields mangled: seq=%d pts=%d kind=%s", frame.Seq(), frame.PTS(), frame.Kind())
	}
}

func TestMetaIsCloned(t *testing.T) {
	meta := map[string]string{"device": "default"}
	frame := NewSystemFrame(0, "recording.started", meta)
	meta["device"] = "other"

	if frame.Meta()["device"] != "default" {
		t.Fatal("frame shares the caller's meta map")
	}
	frame.Meta()["extra"] = "x"
	if _, ok := frame.Meta()["extra"]; ok {
		t.Fatal("Meta handed out the internal map")
	}
	if frame.Name() != "recording.started" || frame.Kind() != KindSystem {
		t.Fatalf("system frame fields mangled: %s/%s", frame.Name(), frame.Kind())
	}
}
