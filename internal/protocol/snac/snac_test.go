package snac

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/oscarctl/internal/protocol"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []Envelope{
		{Family: FamilyAuth, Subtype: AuthMD5Request, Flags: 0, RequestID: 0, Payload: []byte{}},
		{Family: 0xFFFF, Subtype: 0xFFFF, Flags: 0x8001, RequestID: 0xFFFFFFFF, Payload: []byte{1, 2, 3}},
		{Family: FamilyGeneral, Subtype: GeneralClientReady, Flags: 0x0002, RequestID: 42, Payload: bytes.Repeat([]byte{0xAB}, 300)},
	}
	for _, in := range tests {
		out, err := Decode(Encode(in))
		if err != nil {
			t.Fatalf("decode %s: %v", in, err)
		}
		if out.Family != in.Family || out.Subtype != in.Subtype || out.Flags != in.Flags || out.RequestID != in.RequestID {
			t.Fatalf("header mismatch: got=%s want=%s", out, in)
		}
		if !bytes.Equal(out.Payload, in.Payload) {
			t.Fatalf("payload mismatch for %s", in)
		}
	}
}

func TestEncodeWireLayout(t *testing.T) {
	b := Encode(New(FamilyAuth, AuthMD5Response, 0x01020304, []byte{0xAA}))
	want := []byte{0x00, 0x17, 0x00, 0x07, 0x00, 0x00, 0x01, 0x02, 0x03, 0x04, 0xAA}
	if !bytes.Equal(b, want) {
		t.Fatalf("wire mismatch:\n got=% x\nwant=% x", b, want)
	}
}

func TestDecodeShortHeaderIsTruncation(t *testing.T) {
	_, err := Decode(make([]byte, HeaderLen-1))
	if !errors.Is(err, ErrShortHeader) || !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("expected truncation error, got %v", err)
	}
	if _, err := Decode(make([]byte, HeaderLen)); err != nil {
		t.Fatalf("header-only snac should decode, got %v", err)
	}
}

func TestReplyEchoesRequestID(t *testing.T) {
	req := New(FamilyGeneral, GeneralRateInfoRequest, 0xCAFEBABE, nil)
	reply := req.Reply(FamilyGeneral, GeneralRateInfoResponse, []byte{0, 0})
	if reply.RequestID != req.RequestID {
		t.Fatalf("request id not echoed: got=%d want=%d", reply.RequestID, req.RequestID)
	}
	if reply.Flags != 0 {
		t.Fatalf("reply flags should default to 0, got %d", reply.Flags)
	}
}

func TestMatchesResolvesSymbolicNames(t *testing.T) {
	env := New(0x17, 0x06, 1, nil)
	if !Matches(env, "AUTH", "MD5_AUTH_REQUEST") {
		t.Fatalf("expected AUTH/MD5_AUTH_REQUEST match")
	}
	if Matches(env, "AUTH", "LOGIN_REQUEST") {
		t.Fatalf("unexpected AUTH/LOGIN_REQUEST match")
	}
	if Matches(env, "GENERAL", "RATE_INFO_REQUEST") {
		t.Fatalf("unexpected GENERAL/RATE_INFO_REQUEST match")
	}
}

func TestMatchesUnknownNamePanics(t *testing.T) {
	for _, tc := range []struct{ family, subtype string }{
		{"NOPE", "LOGIN_REQUEST"},
		{"AUTH", "NOPE"},
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic for %s/%s", tc.family, tc.subtype)
				}
			}()
			Matches(Envelope{}, tc.family, tc.subtype)
		}()
	}
}

func TestClassifyKnownAndUnsupported(t *testing.T) {
	if op := Classify(FamilyAuth, AuthLoginRequest); op != OpAuthLoginRequest {
		t.Fatalf("expected OpAuthLoginRequest, got %s", op)
	}
	if op := New(FamilySSI, SSIBuddyListRequest, 0, nil).Op(); op != OpSSIBuddyListRequest {
		t.Fatalf("expected OpSSIBuddyListRequest, got %s", op)
	}
	if op := Classify(0x0099, 0x0001); op != OpUnsupported {
		t.Fatalf("expected OpUnsupported, got %s", op)
	}
	// reply subtypes are never client operations
	if op := Classify(FamilyAuth, AuthLoginReply); op != OpUnsupported {
		t.Fatalf("expected OpUnsupported for a reply subtype, got %s", op)
	}
}

func TestRegistryAgreesWithClassify(t *testing.T) {
	for name, sub := range Registry["AUTH"].Subtypes {
		f, s := Lookup("AUTH", name)
		if f != FamilyAuth || s != sub {
			t.Fatalf("lookup AUTH/%s got (0x%x,0x%x)", name, f, s)
		}
	}
	f, s := Lookup("SSI", "BUDDY_LIST_REQUEST")
	if Classify(f, s) != OpSSIBuddyListRequest {
		t.Fatalf("registry and classify disagree for SSI/BUDDY_LIST_REQUEST")
	}
}
