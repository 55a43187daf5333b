package sipua_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ghettovoice/softphone/engine/sipua"
)

func TestBuildOffer(t *testing.T) {
	t.Parallel()

	body, err := sipua.BuildOffer("192.0.2.10", 40000, 42)
	if err != nil {
		t.Fatalf("sipua.BuildOffer() error = %v, want nil", err)
	}

	s := string(body)
	for _, want := range []string{
		"c=IN IP4 192.0.2.10\r\n",
		"m=audio 40000 RTP/AVP 0 8 101\r\n",
		"a=rtpmap:0 PCMU/8000\r\n",
		"a=rtpmap:101 telephone-event/8000\r\n",
		"a=fmtp:101 0-16\r\n",
		"a=sendrecv\r\n",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("sipua.BuildOffer() = %q, want line %q", s, want)
		}
	}

	got, err := sipua.ParseMedia(body)
	if err != nil {
		t.Fatalf("sipua.ParseMedia() error = %v, want nil", err)
	}
	want := &sipua.Media{Host: "192.0.2.10", Port: 40000, Payload: sipua.PayloadPCMU, DTMF: true, EventPayload: sipua.PayloadTelephoneEvent}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("sipua.ParseMedia() = %+v, want %+v\ndiff (-got +want):\n%v", got, want, diff)
	}
}

const remoteOffer = "v=0\r\n" +
	"o=- 1 1 IN IP4 198.51.100.7\r\n" +
	"s=-\r\n" +
	"c=IN IP4 198.51.100.7\r\n" +
	"t=0 0\r\n" +
	"m=audio 30000 RTP/AVP 18 8 96\r\n" +
	"a=rtpmap:18 G729/8000\r\n" +
	"a=rtpmap:8 PCMA/8000\r\n" +
	"a=rtpmap:96 telephone-event/8000\r\n"

func TestParseMedia(t *testing.T) {
	t.Parallel()

	got, err := sipua.ParseMedia([]byte(remoteOffer))
	if err != nil {
		t.Fatalf("sipua.ParseMedia() error = %v, want nil", err)
	}
	want := &sipua.Media{Host: "198.51.100.7", Port: 30000, Payload: sipua.PayloadPCMA, DTMF: true, EventPayload: 96}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("sipua.ParseMedia() = %+v, want %+v\ndiff (-got +want):\n%v", got, want, diff)
	}
}

func TestBuildAnswer(t *testing.T) {
	t.Parallel()

	body, err := sipua.BuildAnswer([]byte(remoteOffer), "192.0.2.10", 40002, 7)
	if err != nil {
		t.Fatalf("sipua.BuildAnswer() error = %v, want nil", err)
	}
	if s := string(body); !strings.Contains(s, "m=audio 40002 RTP/AVP 8 96\r\n") {
		t.Errorf("sipua.BuildAnswer() = %q, want PCMA with events", s)
	}
}

func TestBuildAnswer_NoCodec(t *testing.T) {
	t.Parallel()

	offer := strings.Replace(remoteOffer, "RTP/AVP 18 8 96", "RTP/AVP 18", 1)
	if _, err := sipua.BuildAnswer([]byte(offer), "192.0.2.10", 40002, 7); !errors.Is(err, sipua.ErrNoCodec) {
		t.Errorf("sipua.BuildAnswer() error = %v, want %v", err, sipua.ErrNoCodec)
	}
	if _, err := sipua.ParseMedia([]byte("garbage")); !errors.Is(err, sipua.ErrInvalidArgument) {
		t.Errorf("sipua.ParseMedia(garbage) error = %v, want %v", err, sipua.ErrInvalidArgument)
	}
}
