package amf0

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	obj := NewObject()
	obj.Set("app", String("live"))
	obj.Set("flashVer", String("FMLE/3.0"))
	obj.Set("tcUrl", String("rtmp://example.com/live"))

	values := []Value{
		String("connect"),
		Number(1),
		FromObject(obj),
		Null(),
		Boolean(true),
		StrictArray([]Value{Number(1), Number(2), Number(3)}),
	}

	buf := EncodeAll(values...)
	decoded, err := DecodeAll(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(values) {
		t.Fatalf("expected %d values, got %d", len(values), len(decoded))
	}
	for i := range values {
		if !values[i].Equal(decoded[i]) {
			t.Fatalf("value %d not equal: %+v vs %+v", i, values[i], decoded[i])
		}
	}
}

func TestObjectPreservesInsertionOrder(t *testing.T) {
	obj := NewObject()
	obj.Set("zebra", Number(1))
	obj.Set("apple", Number(2))
	obj.Set("mango", Number(3))

	got := obj.Keys()
	want := []string{"zebra", "apple", "mango"}
	for i, k := range want {
		if got[i] != k {
			t.Fatalf("key order mismatch at %d: got %s want %s", i, got[i], k)
		}
	}

	// Re-setting an existing key must not move its position.
	obj.Set("zebra", Number(99))
	if obj.Keys()[0] != "zebra" {
		t.Fatalf("updating an existing key moved its position")
	}
}

func TestObjectRoundTripPreservesOrderOnWire(t *testing.T) {
	obj := NewObject()
	obj.Set("width", Number(1920))
	obj.Set("height", Number(1080))
	obj.Set("framerate", Number(30))

	buf := Encode(nil, FromObject(obj))
	decoded, err := DecodeAll(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, err := AsObject(decoded[0])
	if err != nil {
		t.Fatalf("as object: %v", err)
	}
	if !obj.Equal(out) {
		t.Fatalf("round trip lost key order: got %v want %v", out.Keys(), obj.Keys())
	}
}

func TestAsStringWrongType(t *testing.T) {
	if _, err := AsString(Number(1)); err == nil {
		t.Fatalf("expected error casting a Number to string")
	}
}

func TestDecodeAllTruncatedBuffer(t *testing.T) {
	buf := []byte{byte(TypeNumber), 0x00, 0x00} // too short for a float64
	if _, err := DecodeAll(buf); err == nil {
		t.Fatalf("expected error decoding truncated buffer")
	}
}

func TestEcmaArrayRoundTrip(t *testing.T) {
	obj := NewObject()
	obj.Set("duration", Number(12.5))
	obj.Set("videocodecid", Number(7))

	buf := Encode(nil, FromEcmaArray(obj))
	decoded, err := DecodeAll(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded[0].Type() != TypeEcmaArray {
		t.Fatalf("expected EcmaArray type, got %v", decoded[0].Type())
	}
	out, err := AsObject(decoded[0])
	if err != nil {
		t.Fatalf("as object: %v", err)
	}
	if !obj.Equal(out) {
		t.Fatalf("ecma array round trip mismatch")
	}
}
