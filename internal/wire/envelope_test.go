package wire

import "testing"

func TestEncodeDecodeRoundTrips(t *testing.T) {
	type payload struct {
		Foo string `json:"foo"`
	}
	env, err := Encode("gateway:1", "init", "ref1", payload{Foo: "bar"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if env.Topic != "gateway:1" || env.Event != "init" || env.Ref != "ref1" {
		t.Fatalf("unexpected envelope: %#v", env)
	}
	var out payload
	if err := env.Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Foo != "bar" {
		t.Fatalf("expected foo=bar, got %#v", out)
	}
}

func TestEncodeNilPayloadOmitsField(t *testing.T) {
	env, err := Encode("t", "e", "", nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if env.Payload != nil {
		t.Fatalf("expected nil payload, got %s", env.Payload)
	}
}

func TestNewRefIsUnique(t *testing.T) {
	a, b := NewRef(), NewRef()
	if a == b {
		t.Fatalf("expected distinct refs, got %q twice", a)
	}
}

func TestRecordingSinkCollectsInOrder(t *testing.T) {
	s := &RecordingSink{}
	s.Send(Envelope{Event: "a"})
	s.Send(Envelope{Event: "b"})
	if len(s.Sent) != 2 || s.Sent[0].Event != "a" || s.Sent[1].Event != "b" {
		t.Fatalf("unexpected recording: %#v", s.Sent)
	}
}
