package identity

import "testing"

func TestSignVerifyRoundtrip(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	message := []byte("hello world")
	sig := id.Sign(message)
	if err := Verify(id.ActorID(), message, sig); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestWrongMessageFails(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	sig := id.Sign([]byte("message A"))
	if err := Verify(id.ActorID(), []byte("message B"), sig); err == nil {
		t.Fatal("expected verification failure for wrong message")
	}
}

func TestWrongKeyFails(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	message := []byte("test message")
	sig := a.Sign(message)
	if err := Verify(b.ActorID(), message, sig); err == nil {
		t.Fatal("expected verification failure for wrong key")
	}
}

func TestSecretBytesRoundtrip(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	seed := id.SecretBytes()
	restored := FromSecretBytes(seed)
	if id.ActorID() != restored.ActorID() {
		t.Fatal("restored identity has a different actor id")
	}
}
