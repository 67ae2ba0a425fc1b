package boss

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/danmuck/oscarctl/internal/oscar"
	"github.com/danmuck/oscarctl/internal/protocol"
	"github.com/danmuck/oscarctl/internal/protocol/flap"
	"github.com/danmuck/oscarctl/internal/protocol/snac"
	"github.com/danmuck/oscarctl/internal/protocol/tlv"
	"github.com/danmuck/oscarctl/internal/store"
	"github.com/danmuck/oscarctl/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

type fixture struct {
	t   *testing.T
	log zerolog.Logger
	db  *store.DB
	svc *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := testlog.Start(t)
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.UpsertAccount(context.Background(), store.Account{Screenname: "Alice", Password: "pw"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return &fixture{t: t, log: log, db: db, svc: NewService(db, NewRegistry())}
}

func (fx *fixture) cookie() []byte {
	fx.t.Helper()
	c, err := fx.db.Issue(context.Background(), "alice")
	if err != nil {
		fx.t.Fatalf("issue cookie: %v", err)
	}
	return c
}

type peer struct {
	t      *testing.T
	conn   *oscar.Conn
	client net.Conn
	done   chan error
	seq    uint16
}

// connect opens a pipe to the service and consumes the start frame.
func (fx *fixture) connect() *peer {
	fx.t.Helper()
	server, client := net.Pipe()
	fx.t.Cleanup(func() { client.Close() })
	c := oscar.NewConn(server, fx.svc.Name(), oscar.ConnConfig{IdleTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}, fx.log)
	p := &peer{t: fx.t, conn: c, client: client, done: make(chan error, 1)}
	go func() {
		fx.svc.OnConnection(c)
		p.done <- c.Serve(context.Background())
	}()
	_ = client.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := flap.ReadFrame(client); err != nil {
		fx.t.Fatalf("read start: %v", err)
	}
	return p
}

func (p *peer) write(typ flap.Type, payload []byte) {
	p.t.Helper()
	if err := flap.WriteFrame(p.client, flap.Frame{Type: typ, Sequence: p.seq, Payload: payload}); err != nil {
		p.t.Fatalf("write %s: %v", typ, err)
	}
	p.seq++
}

func (p *peer) signon(tlvs tlv.List) {
	p.t.Helper()
	p.write(flap.TypeSignon, append(flap.StartPayload(), tlv.MustEncode(tlvs)...))
}

func (p *peer) request(family, subtype uint16, reqID uint32, payload []byte) {
	p.t.Helper()
	p.write(flap.TypeData, snac.Encode(snac.New(family, subtype, reqID, payload)))
}

func (p *peer) read() snac.Envelope {
	p.t.Helper()
	f, err := flap.ReadFrame(p.client)
	if err != nil {
		p.t.Fatalf("read: %v", err)
	}
	if f.Type != flap.TypeData {
		p.t.Fatalf("expected data frame, got %s", f.Type)
	}
	env, err := snac.Decode(f.Payload)
	if err != nil {
		p.t.Fatalf("decode: %v", err)
	}
	return env
}

// admit signs on with a fresh cookie and checks the family announcement.
func (fx *fixture) admit() *peer {
	fx.t.Helper()
	p := fx.connect()
	p.signon(tlv.List{tlv.Bytes(TLVCookie, fx.cookie())})
	env := p.read()
	if env.Family != snac.FamilyGeneral || env.Subtype != snac.GeneralSupportedFamilies {
		fx.t.Fatalf("expected supported families, got %s", env)
	}
	if !bytes.Equal(env.Payload, SupportedFamilies()) {
		fx.t.Fatalf("family catalogue=% x", env.Payload)
	}
	return p
}

func (p *peer) expectFatal(want error) {
	p.t.Helper()
	select {
	case err := <-p.done:
		if !errors.Is(err, want) {
			p.t.Fatalf("expected %v, got %v", want, err)
		}
	case <-time.After(5 * time.Second):
		p.t.Fatalf("connection not closed")
	}
	if _, err := p.client.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		p.t.Fatalf("expected silent disconnect, got %v", err)
	}
}

func TestSignonWithIssuedCookieIsAdmitted(t *testing.T) {
	fx := newFixture(t)
	p := fx.admit()
	if p.conn.State() != oscar.StateEstablished {
		t.Fatalf("state=%s", p.conn.State())
	}
	sessions := fx.svc.Registry().Snapshot()
	if len(sessions) != 1 || sessions[0].Screenname != "Alice" || sessions[0].Online {
		t.Fatalf("unexpected registry: %+v", sessions)
	}
}

func TestSignonRejectsBadCookies(t *testing.T) {
	cases := []struct {
		name string
		tlvs func(fx *fixture) tlv.List
	}{
		{"missing cookie", func(*fixture) tlv.List { return nil }},
		{"forged cookie", func(*fixture) tlv.List {
			return tlv.List{tlv.Bytes(TLVCookie, bytes.Repeat([]byte{0x11}, store.CookieLen))}
		}},
		{"static legacy cookie", func(*fixture) tlv.List { return tlv.List{tlv.String(TLVCookie, "111111111")} }},
		{"tampered cookie", func(fx *fixture) tlv.List {
			c := fx.cookie()
			c[len(c)-1] ^= 0x01
			return tlv.List{tlv.Bytes(TLVCookie, c)}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t)
			p := fx.connect()
			p.signon(tc.tlvs(fx))
			p.expectFatal(protocol.ErrAuthentication)
			if fx.svc.Registry().Len() != 0 {
				t.Fatalf("rejected session leaked into registry")
			}
		})
	}
}

func TestCookieCannotBeReplayed(t *testing.T) {
	fx := newFixture(t)
	cookie := fx.cookie()

	first := fx.connect()
	first.signon(tlv.List{tlv.Bytes(TLVCookie, cookie)})
	first.read()

	second := fx.connect()
	second.signon(tlv.List{tlv.Bytes(TLVCookie, cookie)})
	second.expectFatal(protocol.ErrAuthentication)
}

func TestSignonWrongVersionIsFatal(t *testing.T) {
	fx := newFixture(t)
	p := fx.connect()
	p.write(flap.TypeSignon, []byte{0, 0, 0, 9})
	p.expectFatal(protocol.ErrProtocolVersion)
}

func TestDispatchTableRepliesEchoRequestID(t *testing.T) {
	cases := []struct {
		name            string
		family, subtype uint16
		wantFamily      uint16
		wantSubtype     uint16
		wantPayload     []byte
	}{
		{"family versions", snac.FamilyGeneral, snac.GeneralClientFamilyVersions, snac.FamilyGeneral, snac.GeneralServerFamilyVersions, FamilyVersions()},
		{"rate info", snac.FamilyGeneral, snac.GeneralRateInfoRequest, snac.FamilyGeneral, snac.GeneralRateInfoResponse, []byte{0, 0}},
		{"ssi limits", snac.FamilySSI, snac.SSILimitsRequest, snac.FamilySSI, snac.SSILimitsResponse, SSILimits()},
		{"buddy list", snac.FamilySSI, snac.SSIBuddyListRequest, snac.FamilySSI, snac.SSIBuddyListResponse, BuddyList()},
		{"buddy rights", snac.FamilyBuddyList, snac.BuddyListRightsRequest, snac.FamilyBuddyList, snac.BuddyListRightsReply, BuddyListRights()},
		{"privacy rights", snac.FamilyPrivacy, snac.PrivacyRightsRequest, snac.FamilyPrivacy, snac.PrivacyRightsReply, PrivacyRights()},
		{"location rights", snac.FamilyLocation, snac.LocationRightsRequest, snac.FamilyLocation, snac.LocationRightsReply, LocationRights()},
		{"icbm params", snac.FamilyICBM, snac.ICBMParamRequest, snac.FamilyICBM, snac.ICBMParamReply, ICBMParams()},
	}
	fx := newFixture(t)
	p := fx.admit()
	for i, tc := range cases {
		reqID := uint32(0x1000 + i)
		p.request(tc.family, tc.subtype, reqID, nil)
		got := p.read()
		if got.Family != tc.wantFamily || got.Subtype != tc.wantSubtype {
			t.Fatalf("%s: reply=%s want %04x/%04x", tc.name, got, tc.wantFamily, tc.wantSubtype)
		}
		if got.RequestID != reqID {
			t.Fatalf("%s: request id=%d want %d", tc.name, got.RequestID, reqID)
		}
		if !bytes.Equal(got.Payload, tc.wantPayload) {
			t.Fatalf("%s: payload=% x want % x", tc.name, got.Payload, tc.wantPayload)
		}
	}
}

func TestSelfInfoUsesAuthenticatedScreenname(t *testing.T) {
	fx := newFixture(t)
	p := fx.admit()
	p.request(snac.FamilyGeneral, snac.GeneralSelfInfoRequest, 77, nil)
	got := p.read()
	if got.Subtype != snac.GeneralSelfInfoResponse || got.RequestID != 77 {
		t.Fatalf("unexpected reply %s", got)
	}
	b := got.Payload
	n := int(b[0])
	if string(b[1:1+n]) != "Alice" {
		t.Fatalf("screenname=%q", b[1:1+n])
	}
	rest := b[1+n:]
	if binary.BigEndian.Uint16(rest[0:2]) != 0 {
		t.Fatalf("warning level should be zero")
	}
	count := int(binary.BigEndian.Uint16(rest[2:4]))
	tlvs, err := tlv.Decode(rest[4:])
	if err != nil {
		t.Fatalf("decode user info tlvs: %v", err)
	}
	if count != len(tlvs) {
		t.Fatalf("tlv count=%d decoded=%d", count, len(tlvs))
	}
	if class, err := tlvs.Uint16(0x0001); err != nil || class != ClassAIMFree {
		t.Fatalf("user class=%#x err=%v", class, err)
	}
}

func TestNoReplyOperationsKeepConnectionOpen(t *testing.T) {
	fx := newFixture(t)
	p := fx.admit()

	icbm := make([]byte, 0, 32)
	icbm = append(icbm, 1, 2, 3, 4, 5, 6, 7, 8, 0x00, 0x01, 3)
	icbm = append(icbm, "bob"...)
	icbm = append(icbm, tlv.MustEncode(tlv.List{tlv.Bytes(0x0002, textFragment("hello"))})...)

	p.request(0x0042, 0x0001, 1, []byte{0xDE, 0xAD})
	p.request(snac.FamilyUsageStats, snac.UsageStatsClientReport, 2, []byte{0x00})
	p.request(snac.FamilyICBM, snac.ICBMSend, 3, icbm)
	p.request(snac.FamilyICBM, snac.ICBMSend, 4, []byte{0x01})
	p.request(snac.FamilyAuth, snac.AuthMD5Request, 5, nil)
	p.request(snac.FamilyGeneral, snac.GeneralClientReady, 6, nil)
	p.request(snac.FamilyGeneral, snac.GeneralRateInfoRequest, 7, nil)

	got := p.read()
	if got.RequestID != 7 || got.Subtype != snac.GeneralRateInfoResponse {
		t.Fatalf("expected only the rate info reply, got %s", got)
	}
	if !fx.svc.Registry().Online("alice") {
		t.Fatalf("client ready did not mark the session online")
	}
	if p.conn.State() != oscar.StateEstablished {
		t.Fatalf("state=%s", p.conn.State())
	}
	if s := fx.svc.Registry().Snapshot(); len(s) != 1 || s[0].SNACCount != 7 {
		t.Fatalf("snac count: %+v", s)
	}
}

func TestSessionLeavesRegistryOnDisconnect(t *testing.T) {
	fx := newFixture(t)
	p := fx.admit()
	p.request(snac.FamilyGeneral, snac.GeneralClientReady, 1, nil)
	p.write(flap.TypeSignoff, nil)
	select {
	case err := <-p.done:
		if err != nil {
			t.Fatalf("signoff should close cleanly, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("signoff did not close the connection")
	}
	if fx.svc.Registry().Len() != 0 || fx.svc.Registry().Online("alice") {
		t.Fatalf("registry still holds the session")
	}
}

func textFragment(text string) []byte {
	caps := []byte{0x05, 0x01, 0x00, 0x01, 0x01}
	body := append([]byte{0x00, 0x00, 0x00, 0x00}, text...)
	frag := append([]byte{0x01, 0x01}, binary.BigEndian.AppendUint16(nil, uint16(len(body)))...)
	return append(caps, append(frag, body...)...)
}

func TestParseSendICBM(t *testing.T) {
	payload := []byte{9, 9, 9, 9, 9, 9, 9, 9, 0x00, 0x01, 3}
	payload = append(payload, "bob"...)
	payload = append(payload, tlv.MustEncode(tlv.List{
		tlv.Bytes(0x0002, textFragment("<b>hi</b>")),
		tlv.Empty(0x0003),
	})...)

	msg, err := ParseSendICBM(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Recipient != "bob" || msg.Channel != 1 || msg.Text != "<b>hi</b>" || msg.Cookie[0] != 9 {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !msg.TLVs.Has(0x0003) {
		t.Fatalf("trailing tlvs dropped")
	}

	if _, err := ParseSendICBM(payload[:5]); !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("short header: %v", err)
	}
	if _, err := ParseSendICBM(payload[:12]); !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("short recipient: %v", err)
	}
}

func TestReplyBuilders(t *testing.T) {
	if len(SupportedFamilies()) != 2*len(Families) {
		t.Fatalf("family list length")
	}
	v := FamilyVersions()
	if binary.BigEndian.Uint16(v[0:2]) != snac.FamilyGeneral || binary.BigEndian.Uint16(v[2:4]) != 3 {
		t.Fatalf("general family must announce version 3: % x", v[:4])
	}
	for i := 4; i < len(v); i += 4 {
		if binary.BigEndian.Uint16(v[i+2:i+4]) != 1 {
			t.Fatalf("family %04x version=%d", binary.BigEndian.Uint16(v[i:i+2]), binary.BigEndian.Uint16(v[i+2:i+4]))
		}
	}
	rights, err := tlv.Decode(PrivacyRights())
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := rights.Uint16(0x0001); n != 0xC8 {
		t.Fatalf("privacy permit max=%d", n)
	}
	if _, err := tlv.Decode(SSILimits()); err != nil {
		t.Fatalf("ssi limits must be a valid tlv list: %v", err)
	}
	if externalIP("10.1.2.3:5191") != 0x0A010203 || externalIP("[::1]:1") != 0 {
		t.Fatalf("external ip conversion")
	}
}

func TestRegistrySnapshotOrder(t *testing.T) {
	r := NewRegistry()
	base := time.Unix(1000, 0)
	r.Add(Session{ConnID: "b", Screenname: "Bob", SignonAt: base.Add(time.Second)})
	r.Add(Session{ConnID: "a", Screenname: "Alice", SignonAt: base})
	if r.MarkOnline("missing") {
		t.Fatalf("unknown connection marked online")
	}
	r.MarkOnline("b")
	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].ConnID != "a" || snap[1].ConnID != "b" {
		t.Fatalf("order: %+v", snap)
	}
	if !r.Online("B O B") || r.Online("alice") {
		t.Fatalf("online lookup must normalize names")
	}
	r.Remove("a")
	if r.Len() != 1 {
		t.Fatalf("len=%d", r.Len())
	}
}
